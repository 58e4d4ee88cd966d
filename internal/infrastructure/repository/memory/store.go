// Package memory is a process-local implementation of ports.Store used for
// local development and tests. Transactions are serialized and roll back by
// restoring a snapshot.
package memory

import (
	"context"
	"sync"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

type state struct {
	cases      map[string]domain.Case
	clients    map[string]domain.Client
	tokens     []domain.AccessToken
	documents  []domain.Document
	signatures []domain.Signature
	generated  []domain.GeneratedDocument
	events     []domain.CaseEvent
}

func (st *state) clone() *state {
	out := &state{
		cases:      make(map[string]domain.Case, len(st.cases)),
		clients:    make(map[string]domain.Client, len(st.clients)),
		tokens:     append([]domain.AccessToken(nil), st.tokens...),
		documents:  append([]domain.Document(nil), st.documents...),
		signatures: append([]domain.Signature(nil), st.signatures...),
		generated:  append([]domain.GeneratedDocument(nil), st.generated...),
		events:     append([]domain.CaseEvent(nil), st.events...),
	}
	for k, v := range st.cases {
		out.cases[k] = v
	}
	for k, v := range st.clients {
		out.clients[k] = v
	}
	return out
}

type Store struct {
	data *state
	// txMu serializes every write, whether standalone or transactional.
	txMu *sync.Mutex
	mu   *sync.RWMutex
	inTx bool
}

var _ ports.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		data: &state{
			cases:   make(map[string]domain.Case),
			clients: make(map[string]domain.Client),
		},
		txMu: &sync.Mutex{},
		mu:   &sync.RWMutex{},
	}
}

// SeedClient registers a client record; client management lives outside the core.
func (s *Store) SeedClient(client domain.Client) {
	_ = s.write(func(st *state) error {
		st.clients[client.ID] = client
		return nil
	})
}

func (s *Store) Cases() ports.CaseRepository                  { return &caseRepository{s: s} }
func (s *Store) Clients() ports.ClientRepository              { return &clientRepository{s: s} }
func (s *Store) Tokens() ports.TokenRepository                { return &tokenRepository{s: s} }
func (s *Store) Documents() ports.DocumentRepository          { return &documentRepository{s: s} }
func (s *Store) Signatures() ports.SignatureRepository        { return &signatureRepository{s: s} }
func (s *Store) Generated() ports.GeneratedDocumentRepository { return &generatedRepository{s: s} }
func (s *Store) Events() ports.CaseEventRepository            { return &eventRepository{s: s} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	tx := &Store{data: s.data, txMu: s.txMu, mu: s.mu, inTx: true}
	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		*s.data = *snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) write(fn func(st *state) error) error {
	if !s.inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}
