package domain

import "time"

// ActivityEntry is one row of the console activity log.
type ActivityEntry struct {
	ID        int64          `json:"id"`
	Tipo      string         `json:"tipo"`
	Actor     string         `json:"actor"`
	Recurso   string         `json:"recurso"`
	RecursoID string         `json:"recurso_id"`
	Resultado string         `json:"resultado"`
	Detalle   map[string]any `json:"detalle,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
