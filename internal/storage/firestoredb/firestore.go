// Package firestoredb stores the site's data in Cloud Firestore.
package firestoredb

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/casaolivo/bnb-server/internal/storage"
)

const (
	colRooms          = "rooms"
	colBookings       = "bookings"
	colSeasons        = "seasons"
	colSpecialPeriods = "special_periods"
	colOverrides      = "price_overrides"
	colUsers          = "users"
	colReviews        = "reviews"
	colSettings       = "settings"
	colAdminOTPs      = "admin_otps"
	colSyncRuns       = "sync_runs"

	contactDocID = "contact"
)

// Store implements storage.Store on a Firestore client.
type Store struct {
	client *firestore.Client
}

var _ storage.Store = (*Store)(nil)

// Open connects to Firestore for projectID. credJSON may be empty to use
// application default credentials.
func Open(ctx context.Context, projectID, credJSON string) (*Store, error) {
	var opts []option.ClientOption
	if credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firestore client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// mapErr translates gRPC status codes into storage errors.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.AlreadyExists:
		return storage.ErrAlreadyExists
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

func (s *Store) get(ctx context.Context, col, id string, dst any) error {
	if id == "" {
		return storage.ErrNotFound
	}
	doc, err := s.client.Collection(col).Doc(id).Get(ctx)
	if err != nil {
		return mapErr(err, "get "+col+"/"+id)
	}
	if err := doc.DataTo(dst); err != nil {
		return fmt.Errorf("failed to parse %s/%s: %w", col, id, err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, col, id string, src any) error {
	_, err := s.client.Collection(col).Doc(id).Set(ctx, src)
	return mapErr(err, "write "+col+"/"+id)
}

func (s *Store) delete(ctx context.Context, col, id string) error {
	ref := s.client.Collection(col).Doc(id)
	_, err := ref.Delete(ctx, firestore.Exists)
	return mapErr(err, "delete "+col+"/"+id)
}

// each decodes every document of the query into a fresh T and calls fn.
func each[T any](ctx context.Context, q firestore.Query, fn func(string, *T) error) error {
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return mapErr(err, "query")
		}
		var v T
		if err := snap.DataTo(&v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", snap.Ref.Path, err)
		}
		if err := fn(snap.Ref.ID, &v); err != nil {
			return err
		}
	}
}
