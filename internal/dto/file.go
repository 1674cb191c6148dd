package dto

// RenameFileRequest changes the display name of an attachment.
type RenameFileRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

// SignedURLQuery requests a presigned download link. ExpiresIn is in
// seconds; zero means the configured default.
type SignedURLQuery struct {
	ExpiresIn int `form:"expiresIn"`
}

// SignedURLResponse returns a presigned download link.
type SignedURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}
