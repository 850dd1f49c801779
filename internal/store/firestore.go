package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
)

const (
	// txMaxAttempts bounds optimistic retry on write conflicts.
	txMaxAttempts = 3
	// txTimeout bounds a whole transaction including its retries.
	txTimeout = 30 * time.Second
)

// Client is the Firestore-backed Store implementation. It also carries the
// Firebase Auth client so the HTTP layer can verify ID tokens without a
// second app initialization.
type Client struct {
	fs        *firestore.Client
	auth      *auth.Client
	projectID string
}

var _ Store = (*Client)(nil)

// NewClient creates a Firestore-backed store for the given project, using
// Application Default Credentials unless an explicit credentials file is
// supplied.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		fsClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{fs: fsClient, auth: authClient, projectID: projectID}, nil
}

// Auth returns the Firebase Auth client for token verification.
func (c *Client) Auth() *auth.Client {
	return c.auth
}

// Close closes the underlying Firestore client.
func (c *Client) Close() error {
	return c.fs.Close()
}

// Get retrieves a document by id.
func (c *Client) Get(ctx context.Context, collection, id string) (Doc, error) {
	snap, err := c.fs.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Doc{}, mapStoreErr(collection, id, err)
	}
	return Doc{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// Query returns all documents in the collection matching every predicate.
func (c *Client) Query(ctx context.Context, collection string, preds ...Predicate) ([]Doc, error) {
	iter := buildQuery(c.fs.Collection(collection), preds).Documents(ctx)
	defer iter.Stop()

	var docs []Doc
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapStoreErr(collection, "", err)
		}
		docs = append(docs, Doc{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

// Set writes a document, allocating an id when none is given.
func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	ref := c.fs.Collection(collection).Doc(id)
	if id == "" {
		ref = c.fs.Collection(collection).NewDoc()
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return "", mapStoreErr(collection, ref.ID, err)
	}
	return ref.ID, nil
}

// Update merges fields into an existing document.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := c.fs.Collection(collection).Doc(id).Set(ctx, fields, firestore.MergeAll); err != nil {
		return mapStoreErr(collection, id, err)
	}
	return nil
}

// Delete removes a document. Firestore treats deleting an absent document as
// a successful no-op, matching the Store contract.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if _, err := c.fs.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return mapStoreErr(collection, id, err)
	}
	return nil
}

// NewID allocates a fresh document id without writing.
func (c *Client) NewID(collection string) string {
	return c.fs.Collection(collection).NewDoc().ID
}

// RunTransaction runs fn atomically with bounded retry on conflict. The whole
// attempt budget shares one timeout.
func (c *Client) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	err := c.fs.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(&fsTx{client: c, t: t})
	}, firestore.MaxAttempts(txMaxAttempts))
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.Aborted {
		return &errs.ConflictError{Attempts: txMaxAttempts, Err: err}
	}
	return mapStoreErr("", "", err)
}

// fsTx adapts *firestore.Transaction to the Tx interface.
type fsTx struct {
	client *Client
	t      *firestore.Transaction
}

func (tx *fsTx) Get(collection, id string) (Doc, error) {
	snap, err := tx.t.Get(tx.client.fs.Collection(collection).Doc(id))
	if err != nil {
		return Doc{}, mapStoreErr(collection, id, err)
	}
	return Doc{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (tx *fsTx) Query(collection string, preds ...Predicate) ([]Doc, error) {
	snaps, err := tx.t.Documents(buildQuery(tx.client.fs.Collection(collection), preds)).GetAll()
	if err != nil {
		return nil, mapStoreErr(collection, "", err)
	}
	docs := make([]Doc, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Doc{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

func (tx *fsTx) Set(collection, id string, data map[string]any) error {
	if err := tx.t.Set(tx.client.fs.Collection(collection).Doc(id), data); err != nil {
		return mapStoreErr(collection, id, err)
	}
	return nil
}

func (tx *fsTx) Update(collection, id string, fields map[string]any) error {
	if err := tx.t.Set(tx.client.fs.Collection(collection).Doc(id), fields, firestore.MergeAll); err != nil {
		return mapStoreErr(collection, id, err)
	}
	return nil
}

func (tx *fsTx) Delete(collection, id string) error {
	if err := tx.t.Delete(tx.client.fs.Collection(collection).Doc(id)); err != nil {
		return mapStoreErr(collection, id, err)
	}
	return nil
}

func buildQuery(col *firestore.CollectionRef, preds []Predicate) firestore.Query {
	q := col.Query
	for _, p := range preds {
		q = q.Where(p.Field, string(p.Op), p.Value)
	}
	return q
}

func mapStoreErr(collection, id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return errs.NotFound(collection, id)
	case codes.Unavailable, codes.DeadlineExceeded:
		return &errs.UnavailableError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.UnavailableError{Err: err}
	}
	return err
}
