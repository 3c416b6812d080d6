package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields = errors.New("please enter the correct information")
	ErrEmailTaken    = errors.New("email already exists")
	ErrWeakPassword  = errors.New("the password needs to be at least 8 characters long")
	ErrUnknownEmail  = errors.New("no account with that email")
	ErrWrongPassword = errors.New("password is wrong")
	ErrExpiredToken  = errors.New("token expired")
	ErrInvalidToken  = errors.New("token invalid")
)

const (
	minPasswordLength = 8
	bcryptCost        = 10
)

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *TokenManager) Issue(u UserRecord) (string, error) {
	now := m.now()
	claims := tokenClaims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the email the token was issued to.
func (m *TokenManager) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims, ok := parsed.Claims.(*tokenClaims); ok && parsed.Valid && claims.Email != "" {
		return claims.Email, nil
	}
	return "", ErrInvalidToken
}

// AccountService serves the account endpoints.
type AccountService struct {
	store  *AccountStore
	tokens *TokenManager
}

type commentReply struct {
	Comment string `json:"comment"`
}

type loginReply struct {
	AccessToken string `json:"accessToken"`
	Username    string `json:"username"`
	Email       string `json:"email"`
}

type tokenReply struct {
	Email string `json:"email"`
}

// writeJSON replies 200 with v; account failures are reported as a comment,
// not an HTTP status.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		DebugLog("%s: undecodable body: %v", r.URL.Path, err)
		writeJSON(w, commentReply{Comment: ErrMissingFields.Error()})
		return false
	}
	return true
}

func (s *AccountService) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, commentReply{Comment: ErrMissingFields.Error()})
		return
	}
	_, err := s.store.UserByEmail(r.Context(), req.Email)
	switch {
	case err == nil:
		writeJSON(w, commentReply{Comment: ErrEmailTaken.Error()})
		return
	case !errors.Is(err, ErrUnknownEmail):
		logError("handleSignup: UserByEmail", err)
		writeJSON(w, commentReply{Comment: "Something went wrong"})
		return
	}
	if len(req.Password) < minPasswordLength {
		writeJSON(w, commentReply{Comment: ErrWeakPassword.Error()})
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		logError("handleSignup: hashPassword", err)
		writeJSON(w, commentReply{Comment: "Something went wrong"})
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, req.Email, hash)
	if errors.Is(err, ErrEmailTaken) {
		writeJSON(w, commentReply{Comment: ErrEmailTaken.Error()})
		return
	}
	if err != nil {
		logError("handleSignup: CreateUser", err)
		writeJSON(w, commentReply{Comment: "Something went wrong"})
		return
	}

	log.Printf("New account created: username='%s', id=%d", user.Username, user.ID)
	writeJSON(w, user)
}

func (s *AccountService) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, commentReply{Comment: ErrMissingFields.Error()})
		return
	}

	user, err := s.store.VerifyCredentials(r.Context(), strings.TrimSpace(req.Email), req.Password)
	switch {
	case errors.Is(err, ErrUnknownEmail), errors.Is(err, ErrWrongPassword):
		DebugLog("handleLogin: %s rejected: %v", req.Email, err)
		writeJSON(w, commentReply{Comment: err.Error()})
		return
	case err != nil:
		logError("handleLogin: VerifyCredentials", err)
		writeJSON(w, commentReply{Comment: "Something went wrong"})
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		logError("handleLogin: Issue", err)
		writeJSON(w, commentReply{Comment: "Something went wrong"})
		return
	}
	if err := s.store.SaveToken(r.Context(), user.Email, token); err != nil {
		logError("handleLogin: SaveToken", err)
		writeJSON(w, commentReply{Comment: "Something went wrong"})
		return
	}

	log.Printf("Account logged in: username='%s', id=%d", user.Username, user.ID)
	writeJSON(w, loginReply{AccessToken: token, Username: user.Username, Email: user.Email})
}

func (s *AccountService) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	email, err := s.tokens.Verify(req.Token)
	if err != nil {
		DebugLog("handleCheckToken: %v", err)
		writeJSON(w, commentReply{Comment: ErrExpiredToken.Error()})
		return
	}
	writeJSON(w, tokenReply{Email: email})
}
