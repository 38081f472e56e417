package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is a Firestore-backed implementation of HistoryStore. Each
// document's transaction history lives in a "transactions" subcollection,
// one transaction per subcollection doc keyed by its zero-padded history
// index so an ordered read by document ID returns them in append order.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: "documents",
	}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) txCollection(docID string) *firestore.CollectionRef {
	return s.docRef(docID).Collection("transactions")
}

func zeroPad(index int) string {
	return fmt.Sprintf("%010d", index)
}

func (s *FirestoreStore) Create(ctx context.Context, id string) error {
	now := time.Now()
	_, err := s.docRef(id).Create(ctx, map[string]interface{}{
		"length":    0,
		"txCount":   0,
		"createdAt": now,
		"updatedAt": now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("document %q already exists", id)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToDocInfo(id, snap), nil
}

func snapshotToDocInfo(id string, snap *firestore.DocumentSnapshot) *DocumentInfo {
	data := snap.Data()
	length, _ := data["length"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return &DocumentInfo{
		ID:        id,
		Length:    int(length),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (s *FirestoreStore) List(ctx context.Context) ([]DocumentInfo, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var result []DocumentInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *snapshotToDocInfo(snap.Ref.ID, snap))
	}
	return result, nil
}

func (s *FirestoreStore) AppendTransactions(ctx context.Context, id string, txs []json.RawMessage, length int) error {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("document %q not found", id)
	}
	if err != nil {
		return err
	}
	count, _ := snap.Data()["txCount"].(int64)

	for i, tx := range txs {
		_, err := s.txCollection(id).Doc(zeroPad(int(count)+i)).Set(ctx, map[string]interface{}{
			"body": string(tx),
		})
		if err != nil {
			return err
		}
	}

	_, err = s.docRef(id).Update(ctx, []firestore.Update{
		{Path: "length", Value: length},
		{Path: "txCount", Value: int(count) + len(txs)},
		{Path: "updatedAt", Value: time.Now()},
	})
	return err
}

func (s *FirestoreStore) GetTransactions(ctx context.Context, id string, from int) ([]json.RawMessage, error) {
	// Verify document exists.
	_, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	iter := s.txCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(from)).
		Documents(ctx)
	defer iter.Stop()

	var txs []json.RawMessage
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		body, ok := snap.Data()["body"].(string)
		if !ok {
			return nil, fmt.Errorf("invalid body in transaction %s", snap.Ref.ID)
		}
		txs = append(txs, json.RawMessage(body))
	}
	return txs, nil
}

func (s *FirestoreStore) Clear(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		if err := s.deleteTransactions(ctx, snap.Ref.ID); err != nil {
			return err
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *FirestoreStore) deleteTransactions(ctx context.Context, docID string) error {
	iter := s.txCollection(docID).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return err
		}
	}
}
