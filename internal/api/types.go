package api

// HealthResponse is the payload of the health probe.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// PersonaRequest selects the active persona trait, by name or by its
// definition-order index.
type PersonaRequest struct {
	Persona string `json:"persona,omitempty"`
	Index   *int   `json:"index,omitempty"`
}

// PersonaResponse reports the active persona trait.
type PersonaResponse struct {
	Persona string `json:"persona"`
}

// PersonaListResponse enumerates the selectable persona traits.
type PersonaListResponse struct {
	Personas []string `json:"personas"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
