package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"user-platform/shared/contracts"
	"user-platform/shared/logx"
	"user-platform/shared/rpcx"
)

// UserService is the business surface the RPC handlers dispatch into.
type UserService interface {
	Register(ctx context.Context, in contracts.RegisterUserInput) (contracts.UserResponse, error)
	Login(ctx context.Context, in contracts.LoginInput) (contracts.AuthTokens, error)
	GetByID(ctx context.Context, id string) (contracts.UserResponse, error)
	FindByEmail(ctx context.Context, email string) (contracts.UserResponse, error)
	Delete(ctx context.Context, id string) error
}

type RPC struct {
	users  UserService
	logger logx.Logger
}

func NewRPC(users UserService, logger logx.Logger) *RPC {
	return &RPC{users: users, logger: logger}
}

// Register binds every user pattern. Lookup and delete require a verified
// caller; registration and login are the ways in.
func (h *RPC) Register(router *rpcx.Router) {
	router.Handle(contracts.PatternCreateUser, h.createUser)
	router.Handle(contracts.PatternLoginUser, h.loginUser)
	router.HandleProtected(contracts.PatternGetUserByID, h.getUserByID)
	router.HandleProtected(contracts.PatternFindUserByEmail, h.findUserByEmail)
	router.HandleProtected(contracts.PatternDeleteUser, h.deleteUser)
}

func (h *RPC) createUser(ctx context.Context, data json.RawMessage, meta rpcx.Metadata) (any, error) {
	var in contracts.RegisterUserInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode registration payload: %w", err)
	}
	return h.users.Register(ctx, in)
}

func (h *RPC) loginUser(ctx context.Context, data json.RawMessage, meta rpcx.Metadata) (any, error) {
	var in contracts.LoginInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode login payload: %w", err)
	}
	return h.users.Login(ctx, in)
}

func (h *RPC) getUserByID(ctx context.Context, data json.RawMessage, meta rpcx.Metadata) (any, error) {
	id, err := scalarField(data, "id")
	if err != nil {
		return nil, err
	}
	return h.users.GetByID(ctx, id)
}

func (h *RPC) findUserByEmail(ctx context.Context, data json.RawMessage, meta rpcx.Metadata) (any, error) {
	email, err := scalarField(data, "email")
	if err != nil {
		return nil, err
	}
	return h.users.FindByEmail(ctx, email)
}

func (h *RPC) deleteUser(ctx context.Context, data json.RawMessage, meta rpcx.Metadata) (any, error) {
	id, err := scalarField(data, "id")
	if err != nil {
		return nil, err
	}
	if err := h.users.Delete(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

// scalarField accepts both payload shapes in the wild: a bare JSON string
// and an object carrying the value under key.
func scalarField(data json.RawMessage, key string) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		if raw, ok := obj[key]; ok {
			if err := json.Unmarshal(raw, &s); err == nil {
				return strings.TrimSpace(s), nil
			}
		}
	}
	return "", fmt.Errorf("payload must be a string or an object with %q", key)
}
