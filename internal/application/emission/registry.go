// Package emission lleva el registro en memoria de las emisiones lanzadas por
// la API HTTP: la emisión corre en background y el caller consulta su estado
// por ID hasta verla terminar.
package emission

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
)

// Estados de una emisión.
const (
	StatusPending = "PENDIENTE"
	StatusOK      = "EXITOSO"
	StatusError   = "ERROR"
)

// Emission una emisión lanzada vía API.
type Emission struct {
	ID        string
	RUC       string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Result    *entity.InvoiceResult
	Err       *domain.Error
}

// Registry registro de emisiones del proceso. No sobrevive al reinicio: una
// emisión en vuelo al caerse el proceso queda sin registro, pero el documento
// vive en la SET y se recupera consultándola.
type Registry struct {
	mu        sync.RWMutex
	emissions map[string]*Emission
}

func NewRegistry() *Registry {
	return &Registry{emissions: make(map[string]*Emission)}
}

// Create registra una emisión pendiente y devuelve su ID.
func (r *Registry) Create(ruc string) *Emission {
	e := &Emission{
		ID:        uuid.NewString(),
		RUC:       ruc,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.mu.Lock()
	r.emissions[e.ID] = e
	r.mu.Unlock()
	return e
}

// Complete marca la emisión como exitosa con el resultado de la SET.
func (r *Registry) Complete(id string, res *entity.InvoiceResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.emissions[id]; ok {
		e.Status = StatusOK
		e.Result = res
		e.UpdatedAt = time.Now()
	}
}

// Fail marca la emisión como fallida con su error clasificado.
func (r *Registry) Fail(id string, err *domain.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.emissions[id]; ok {
		e.Status = StatusError
		e.Err = err
		e.UpdatedAt = time.Now()
	}
}

// Get devuelve una copia de la emisión, o nil si no existe.
func (r *Registry) Get(id string) *Emission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.emissions[id]
	if !ok {
		return nil
	}
	copia := *e
	return &copia
}
