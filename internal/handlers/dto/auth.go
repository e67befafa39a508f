package dto

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=4,max=64"`
	Nickname string `json:"nickname" binding:"required,min=2,max=64"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=student teacher"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
