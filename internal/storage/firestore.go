package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestoreCollection = "production_scout"

// blobDoc is the document shape stored per key.
type blobDoc struct {
	Data      []byte    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to Firestore. credentialsFile is optional; when
// empty, application default credentials are used.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Get retrieves the blob stored under key.
func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.client.Collection(firestoreCollection).Doc(key).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	if !doc.Exists() {
		return nil, ErrNotFound
	}

	var blob blobDoc
	if err := doc.DataTo(&blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", key, err)
	}
	return blob.Data, nil
}

// Put overwrites the document for key.
func (s *FirestoreStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.Collection(firestoreCollection).Doc(key).Set(ctx, blobDoc{
		Data:      data,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
