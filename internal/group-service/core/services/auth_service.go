package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"group-ride/internal/group-service/core/myerrors"

	"github.com/golang-jwt/jwt"
)

const (
	RiderRole = "RIDER"
	AdminRole = "ADMIN"
)

type AuthService struct {
	secretKey string
	now       func() time.Time
}

func NewAuthService(secretKey string) *AuthService {
	return &AuthService{
		secretKey: secretKey,
		now:       time.Now,
	}
}

// ValidateToken checks an HMAC signed bearer token and returns its user_id
// claim. A role claim, when present, must be RIDER. All failures wrap
// myerrors.ErrInvalidToken.
func (a *AuthService) ValidateToken(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	if role, ok := claims["role"].(string); ok && role != RiderRole {
		return "", fmt.Errorf("%w: invalid role", myerrors.ErrInvalidToken)
	}
	return userID(claims)
}

// ValidateAdmin accepts only tokens carrying the ADMIN role.
func (a *AuthService) ValidateAdmin(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	if role, _ := claims["role"].(string); role != AdminRole {
		return "", myerrors.ErrNotAdmin
	}
	return userID(claims)
}

func (a *AuthService) parse(tokenString string) (jwt.MapClaims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", myerrors.ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", myerrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, myerrors.ErrInvalidToken
	}

	if exp, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(exp), 0).Before(a.now()) {
			return nil, fmt.Errorf("%w: token expired", myerrors.ErrInvalidToken)
		}
	}
	return claims, nil
}

func userID(claims jwt.MapClaims) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: user_id is required", myerrors.ErrInvalidToken)
	}
	return id, nil
}

// IssueToken signs a rider token valid for ttl. Session issuance belongs to the
// account service; this exists for local runs and the rider simulator.
func (a *AuthService) IssueToken(userID string, ttl time.Duration) (string, error) {
	return a.issue(userID, RiderRole, ttl)
}

func (a *AuthService) IssueAdminToken(userID string, ttl time.Duration) (string, error) {
	return a.issue(userID, AdminRole, ttl)
}

func (a *AuthService) issue(userID, role string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     a.now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(a.secretKey))
}
