package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

type caseRepository struct{ s *Store }

func (r *caseRepository) Create(_ context.Context, c *domain.Case) error {
	return r.s.write(func(st *state) error {
		if _, exists := st.cases[c.ID]; exists {
			return domain.WrapError(domain.ErrConflict, "create case", fmt.Errorf("case %s already exists", c.ID))
		}
		for _, existing := range st.cases {
			if existing.CaseNumber == c.CaseNumber {
				return domain.WrapError(domain.ErrConflict, "create case", fmt.Errorf("case number %s already used", c.CaseNumber))
			}
		}
		st.cases[c.ID] = *c
		return nil
	})
}

func (r *caseRepository) GetByID(_ context.Context, id string) (*domain.Case, error) {
	var out domain.Case
	err := r.s.read(func(st *state) error {
		c, ok := st.cases[id]
		if !ok {
			return domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id=%s", id))
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate needs no extra locking: transactions are already serialized.
func (r *caseRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Case, error) {
	return r.GetByID(ctx, id)
}

func (r *caseRepository) UpdateStatus(_ context.Context, u domain.StatusUpdate) error {
	return r.s.write(func(st *state) error {
		c, ok := st.cases[u.CaseID]
		if !ok {
			return domain.WrapError(domain.ErrCaseNotFound, "update case status", fmt.Errorf("id=%s", u.CaseID))
		}
		if c.Status != u.From || c.Version != u.ExpectedVersion {
			return domain.WrapError(domain.ErrConflict, "update case status",
				fmt.Errorf("case %s is %s@v%d, expected %s@v%d", u.CaseID, c.Status, c.Version, u.From, u.ExpectedVersion))
		}
		c.Status = u.To
		c.Version++
		c.CompletedAt = u.CompletedAt
		c.UpdatedAt = u.UpdatedAt
		st.cases[u.CaseID] = c
		return nil
	})
}

func (r *caseRepository) SetToken(_ context.Context, id string, token *string, expiresAt *time.Time) error {
	return r.s.write(func(st *state) error {
		c, ok := st.cases[id]
		if !ok {
			return domain.WrapError(domain.ErrCaseNotFound, "set case token", fmt.Errorf("id=%s", id))
		}
		c.SecureToken = token
		c.TokenExpiresAt = expiresAt
		st.cases[id] = c
		return nil
	})
}

func (r *caseRepository) MarkReminded(_ context.Context, id string, at time.Time) error {
	return r.s.write(func(st *state) error {
		c, ok := st.cases[id]
		if !ok {
			return domain.WrapError(domain.ErrCaseNotFound, "mark case reminded", fmt.Errorf("id=%s", id))
		}
		c.RemindedAt = &at
		st.cases[id] = c
		return nil
	})
}

func (r *caseRepository) ListAwaitingReminder(_ context.Context, lastContactBefore time.Time, limit int) ([]domain.Case, error) {
	out := make([]domain.Case, 0)
	err := r.s.read(func(st *state) error {
		for _, c := range st.cases {
			if c.Status != domain.StatusEmailSent {
				continue
			}
			if lastContact(c).Before(lastContactBefore) {
				out = append(out, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return lastContact(out[i]).Before(lastContact(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastContact(c domain.Case) time.Time {
	if c.RemindedAt != nil {
		return *c.RemindedAt
	}
	return c.UpdatedAt
}

type clientRepository struct{ s *Store }

func (r *clientRepository) GetByID(_ context.Context, id string) (*domain.Client, error) {
	var out domain.Client
	err := r.s.read(func(st *state) error {
		client, ok := st.clients[id]
		if !ok {
			return domain.WrapError(domain.ErrClientNotFound, "get client", fmt.Errorf("id=%s", id))
		}
		out = client
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type tokenRepository struct{ s *Store }

func (r *tokenRepository) Insert(_ context.Context, token *domain.AccessToken) error {
	return r.s.write(func(st *state) error {
		for _, existing := range st.tokens {
			if existing.Value == token.Value {
				return domain.WrapError(domain.ErrConflict, "insert token", fmt.Errorf("token value collision"))
			}
		}
		st.tokens = append(st.tokens, *token)
		return nil
	})
}

func (r *tokenRepository) FindByValue(_ context.Context, value string) (*domain.AccessToken, error) {
	var out *domain.AccessToken
	_ = r.s.read(func(st *state) error {
		for i := range st.tokens {
			if st.tokens[i].Value == value {
				found := st.tokens[i]
				out = &found
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, domain.WrapError(domain.ErrTokenNotFound, "find token", fmt.Errorf("unknown token"))
	}
	return out, nil
}

func (r *tokenRepository) LatestActive(_ context.Context, caseID string) (*domain.AccessToken, error) {
	var out *domain.AccessToken
	_ = r.s.read(func(st *state) error {
		for i := range st.tokens {
			t := st.tokens[i]
			if t.CaseID != caseID || t.RevokedAt != nil {
				continue
			}
			if out == nil || !t.IssuedAt.Before(out.IssuedAt) {
				found := t
				out = &found
			}
		}
		return nil
	})
	if out == nil {
		return nil, domain.WrapError(domain.ErrTokenNotFound, "latest active token", fmt.Errorf("case_id=%s", caseID))
	}
	return out, nil
}

func (r *tokenRepository) RevokeActive(_ context.Context, caseID string, at time.Time) (int64, error) {
	var revoked int64
	err := r.s.write(func(st *state) error {
		for i := range st.tokens {
			if st.tokens[i].CaseID == caseID && st.tokens[i].RevokedAt == nil {
				revokedAt := at
				st.tokens[i].RevokedAt = &revokedAt
				revoked++
			}
		}
		return nil
	})
	return revoked, err
}

type documentRepository struct{ s *Store }

func (r *documentRepository) Create(_ context.Context, doc *domain.Document) error {
	return r.s.write(func(st *state) error {
		st.documents = append(st.documents, *doc)
		return nil
	})
}

func (r *documentRepository) GetByID(_ context.Context, id string) (*domain.Document, error) {
	var out *domain.Document
	_ = r.s.read(func(st *state) error {
		for i := range st.documents {
			if st.documents[i].ID == id {
				found := st.documents[i]
				out = &found
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return out, nil
}

func (r *documentRepository) ListByCase(_ context.Context, caseID string) ([]domain.Document, error) {
	out := make([]domain.Document, 0)
	_ = r.s.read(func(st *state) error {
		for _, doc := range st.documents {
			if doc.CaseID == caseID {
				out = append(out, doc)
			}
		}
		return nil
	})
	domain.SortDocuments(out)
	return out, nil
}

func (r *documentRepository) UpdateReview(_ context.Context, id string, status domain.DocumentStatus, reviewer, note string, at time.Time) error {
	return r.s.write(func(st *state) error {
		for i := range st.documents {
			if st.documents[i].ID != id {
				continue
			}
			reviewedAt := at
			st.documents[i].Status = status
			st.documents[i].ReviewedBy = reviewer
			st.documents[i].ReviewNote = note
			st.documents[i].ReviewedAt = &reviewedAt
			return nil
		}
		return domain.WrapError(domain.ErrDocumentNotFound, "review document", fmt.Errorf("id=%s", id))
	})
}

type signatureRepository struct{ s *Store }

func (r *signatureRepository) Create(_ context.Context, sig *domain.Signature) error {
	return r.s.write(func(st *state) error {
		if sig.IsValid {
			for _, existing := range st.signatures {
				if existing.CaseID == sig.CaseID && existing.IsValid {
					return domain.WrapError(domain.ErrConflict, "insert signature", fmt.Errorf("case %s already holds a valid signature", sig.CaseID))
				}
			}
		}
		stored := *sig
		stored.Data = append([]byte(nil), sig.Data...)
		st.signatures = append(st.signatures, stored)
		return nil
	})
}

func (r *signatureRepository) GetValid(_ context.Context, caseID string) (*domain.Signature, error) {
	var out *domain.Signature
	_ = r.s.read(func(st *state) error {
		for i := range st.signatures {
			if st.signatures[i].CaseID == caseID && st.signatures[i].IsValid {
				found := st.signatures[i]
				out = &found
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, domain.WrapError(domain.ErrNoSignatureOnFile, "get valid signature", fmt.Errorf("case_id=%s", caseID))
	}
	return out, nil
}

func (r *signatureRepository) InvalidateValid(_ context.Context, caseID string, at time.Time) (int64, error) {
	var n int64
	err := r.s.write(func(st *state) error {
		for i := range st.signatures {
			if st.signatures[i].CaseID == caseID && st.signatures[i].IsValid {
				invalidatedAt := at
				st.signatures[i].IsValid = false
				st.signatures[i].InvalidatedAt = &invalidatedAt
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *signatureRepository) ListByCase(_ context.Context, caseID string) ([]domain.Signature, error) {
	out := make([]domain.Signature, 0)
	_ = r.s.read(func(st *state) error {
		for _, sig := range st.signatures {
			if sig.CaseID == caseID {
				out = append(out, sig)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].SignedAt.After(out[j].SignedAt) })
	return out, nil
}

type generatedRepository struct{ s *Store }

func (r *generatedRepository) Create(_ context.Context, doc *domain.GeneratedDocument) error {
	return r.s.write(func(st *state) error {
		st.generated = append(st.generated, *doc)
		return nil
	})
}

func (r *generatedRepository) GetByID(_ context.Context, id string) (*domain.GeneratedDocument, error) {
	var out *domain.GeneratedDocument
	_ = r.s.read(func(st *state) error {
		for i := range st.generated {
			if st.generated[i].ID == id {
				found := st.generated[i]
				out = &found
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get generated document", fmt.Errorf("id=%s", id))
	}
	return out, nil
}

func (r *generatedRepository) ListByCase(_ context.Context, caseID string) ([]domain.GeneratedDocument, error) {
	out := make([]domain.GeneratedDocument, 0)
	_ = r.s.read(func(st *state) error {
		for _, doc := range st.generated {
			if doc.CaseID == caseID {
				out = append(out, doc)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type eventRepository struct{ s *Store }

func (r *eventRepository) Append(_ context.Context, event *domain.CaseEvent) error {
	return r.s.write(func(st *state) error {
		st.events = append(st.events, *event)
		return nil
	})
}

func (r *eventRepository) ListByCase(_ context.Context, caseID string) ([]domain.CaseEvent, error) {
	out := make([]domain.CaseEvent, 0)
	_ = r.s.read(func(st *state) error {
		for _, ev := range st.events {
			if ev.CaseID == caseID {
				out = append(out, ev)
			}
		}
		return nil
	})
	return out, nil
}
