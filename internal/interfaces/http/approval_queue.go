package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
)

// PendingApproval una propuesta esperando decisión humana.
type PendingApproval struct {
	ID        string
	Proposal  facturador.Proposal
	CreatedAt time.Time
	decision  chan bool
}

// ApprovalQueue implementa el canal de confirmación sobre la API HTTP: cada
// propuesta queda pendiente hasta que un aprobador la resuelva vía
// POST /api/approvals/:id, o hasta que el contexto de la emisión se cancele.
// No hay timeout propio: la política de espera la pone el caller.
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]*PendingApproval
}

var _ facturador.ConfirmationChannel = (*ApprovalQueue)(nil)

func NewApprovalQueue() *ApprovalQueue {
	return &ApprovalQueue{pending: make(map[string]*PendingApproval)}
}

// Confirm encola la propuesta y bloquea hasta la decisión o la cancelación.
func (q *ApprovalQueue) Confirm(ctx context.Context, p facturador.Proposal) (bool, error) {
	pa := &PendingApproval{
		ID:        uuid.NewString(),
		Proposal:  p,
		CreatedAt: time.Now(),
		decision:  make(chan bool, 1),
	}
	q.mu.Lock()
	q.pending[pa.ID] = pa
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.pending, pa.ID)
		q.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case aprobado := <-pa.decision:
		return aprobado, nil
	}
}

// Pending lista las propuestas a la espera de decisión.
func (q *ApprovalQueue) Pending() []PendingApproval {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingApproval, 0, len(q.pending))
	for _, pa := range q.pending {
		out = append(out, *pa)
	}
	return out
}

// Resolve decide una propuesta pendiente. Falla si el ID no existe o ya fue
// resuelto.
func (q *ApprovalQueue) Resolve(id string, aprobar bool) error {
	q.mu.Lock()
	pa, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("aprobación %s inexistente o ya resuelta", id)
	}
	pa.decision <- aprobar
	return nil
}
