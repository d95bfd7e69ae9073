package handler

import (
	"errors"
	"net/http"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/middleware"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/services/jwttoken"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) Login(res http.ResponseWriter, req *http.Request) {
	var requestModel models.AuthorizationRequest

	if err := h.decodeRequest(req, &requestModel); err != nil {
		zap.L().Info("error validate login request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := h.storage.GetUserByEmail(req.Context(), requestModel.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			zap.L().Info("error user not found", zap.String("email", requestModel.Email))

			res.WriteHeader(http.StatusUnauthorized)
			return
		}

		zap.L().Info("error get user", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(requestModel.Password)); err != nil {
		zap.L().Info("error password mismatch", zap.Int64("user_id", user.ID))

		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	h.generateTokenAndSetCookie(res, user)
}

func (h *Handler) generateTokenAndSetCookie(res http.ResponseWriter, user entities.User) {
	accessToken, err := jwttoken.Generate(h.jwtSecret, jwttoken.Subject{
		UserID: user.ID,
		ShopID: user.ShopID,
		Role:   user.Role,
	})
	if err != nil {
		zap.L().Info("error generate token", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.SetCookie(res, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
	})

	h.writeJSON(res, http.StatusOK, models.AuthorizationResponse{Token: accessToken})
}
