package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=120"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=4,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type addressRequest struct {
	Zipcode    string `json:"zipcode" binding:"required,zipcode"`
	Street     string `json:"street" binding:"required,max=200"`
	Number     string `json:"number" binding:"required,max=20"`
	City       string `json:"city" binding:"required,max=100"`
	State      string `json:"state" binding:"required,max=100"`
	Country    string `json:"country" binding:"required,max=100"`
	Complement string `json:"complement" binding:"omitempty,max=200"`
}

type addressBody struct {
	ID         int64   `json:"id"`
	Zipcode    string  `json:"zipcode"`
	Street     string  `json:"street"`
	Number     string  `json:"number"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	Complement *string `json:"complement"`
}

func toAddressBody(a domain.Address) addressBody {
	body := addressBody{
		ID:      a.ID,
		Zipcode: a.Zipcode,
		Street:  a.Street,
		Number:  a.Number,
		City:    a.City,
		State:   a.State,
		Country: a.Country,
	}
	if a.Complement != "" {
		complement := a.Complement
		body.Complement = &complement
	}
	return body
}

func (a *api) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "Invalid data")
		return
	}

	user, err := a.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"error": nil,
		"user":  gin.H{"id": user.ID, "name": user.Name, "email": user.Email},
	})
}

func (a *api) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "Invalid data")
		return
	}

	token, err := a.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "token": token})
}

func (a *api) listAddresses(c *gin.Context, id Identity) {
	list, err := a.accounts.Addresses(c.Request.Context(), id.UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]addressBody, 0, len(list))
	for _, addr := range list {
		out = append(out, toAddressBody(addr))
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "addresses": out})
}

func (a *api) addAddress(c *gin.Context, id Identity) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "Invalid address")
		return
	}

	created, err := a.accounts.AddAddress(c.Request.Context(), id.UserID, domain.Address{
		Zipcode:    req.Zipcode,
		Street:     req.Street,
		Number:     req.Number,
		City:       req.City,
		State:      req.State,
		Country:    req.Country,
		Complement: req.Complement,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"error": nil, "address": toAddressBody(created)})
}

func (a *api) deleteAddress(c *gin.Context, id Identity) {
	addressID, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.accounts.DeleteAddress(c.Request.Context(), id.UserID, addressID); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil})
}
