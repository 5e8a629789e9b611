package contracts

import "time"

// Service names and broker destinations shared by the gateway and the
// user service. One transport client exists per service name.
const (
	UserService = "USER_SERVICE"

	UserQueue = "user.queue"
)

// Message patterns routed by the user service.
const (
	PatternCreateUser      = "CREATE_USER"
	PatternLoginUser       = "LOGIN_USER"
	PatternGetUserByID     = "GET_USER_BY_ID"
	PatternFindUserByEmail = "FIND_USER_BY_EMAIL"
	PatternDeleteUser      = "DELETE_USER"
)

// MetadataRequestUserID is the conventional metadata key carrying the
// authenticated caller's subject across the RPC boundary.
const MetadataRequestUserID = "requestUserId"

// MetadataAuthorization carries the bearer credential for protected patterns.
const MetadataAuthorization = "authorization"

type RegisterUserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
