package dto

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Recovery sugerencia de recuperación para errores clasificados.
	Recovery string `json:"recovery,omitempty"`
}
