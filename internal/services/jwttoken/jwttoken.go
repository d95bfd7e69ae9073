package jwttoken

import (
	"fmt"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/golang-jwt/jwt/v4"
)

const tokenExp = time.Hour * 24 * 30

// Subject is who a token was issued to.
type Subject struct {
	UserID int64
	ShopID int64
	Role   entities.Role
}

type claims struct {
	jwt.RegisteredClaims
	UserID int64         `json:"user_id"`
	ShopID int64         `json:"shop_id"`
	Role   entities.Role `json:"role"`
}

func Parse(secretKey string, accessToken string) (Subject, error) {
	claims := &claims{}

	token, err := jwt.ParseWithClaims(
		accessToken,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secretKey), nil
		},
	)

	if err != nil {
		return Subject{}, err
	}

	if !token.Valid || claims.UserID == 0 || claims.Role == "" {
		return Subject{}, fmt.Errorf("token is not valid")
	}

	return Subject{UserID: claims.UserID, ShopID: claims.ShopID, Role: claims.Role}, nil
}

func Generate(secretKey string, subject Subject) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExp)),
		},
		UserID: subject.UserID,
		ShopID: subject.ShopID,
		Role:   subject.Role,
	})

	accessToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", err
	}

	return accessToken, nil
}
