package api

// FollowRequest is the body of POST /api/follow.
type FollowRequest struct {
	Target string `json:"target"`
}

// MassRequest is the body of PUT /api/viewpoint/mass.
type MassRequest struct {
	Mass *float64 `json:"mass"`
}

// SeekRequest is the body of POST /api/animation/seek.
type SeekRequest struct {
	Percent float64 `json:"percent"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
