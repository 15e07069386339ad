package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

type BuyerClaims struct {
	BuyerID int64
	Name    string
	Email   string
	Phone   string
	Token   string
}

func CreateJWTToken(buyerID int64, name, email, phone, jwtSecretKey string) (string, error) {
	claims := jwt.MapClaims{}
	claims["authorized"] = true
	claims["userID"] = buyerID
	claims["name"] = name
	claims["email"] = email
	claims["phone"] = phone
	claims["exp"] = time.Now().Add(time.Hour * 24).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(jwtSecretKey))
}

// ParseBuyerToken validates an HS256 token and extracts the buyer identity.
// The raw token is kept so collaborator calls can act on the buyer's behalf.
func ParseBuyerToken(raw, jwtSecretKey string) (BuyerClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(jwtSecretKey), nil
	})
	if err != nil || !token.Valid {
		return BuyerClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return BuyerClaims{}, ErrInvalidToken
	}

	userID, ok := claims["userID"].(float64)
	if !ok || userID <= 0 {
		return BuyerClaims{}, ErrInvalidToken
	}

	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	phone, _ := claims["phone"].(string)

	return BuyerClaims{
		BuyerID: int64(userID),
		Name:    name,
		Email:   email,
		Phone:   phone,
		Token:   raw,
	}, nil
}
