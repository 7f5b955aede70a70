// Package metadata resolves the active version label for a custom model
// name against the metadata store (Firestore-shaped: a `models` collection
// keyed by document, each carrying `activeVersionId`, with a `versions`
// subcollection of documents carrying `versionLabel`), and caches the
// result with an explicit-invalidation-beats-TTL policy.
package metadata

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
)

// Store resolves a model name to its active version label by querying the
// metadata store directly, with no caching.
type Store interface {
	ActiveVersionLabel(ctx context.Context, modelName string) (string, error)
	Close() error
}

// FirestoreStore is the production Store backed by Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore dials Firestore for the given GCP project.
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "failed to connect to metadata store", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// ActiveVersionLabel implements the §4.1 resolution contract: missing model
// document, missing activeVersionId, missing version subdocument, or
// missing versionLabel all surface as VersionUnresolved.
func (s *FirestoreStore) ActiveVersionLabel(ctx context.Context, modelName string) (string, error) {
	iter := s.client.Collection("models").Where("name", "==", modelName).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return "", gatewayerr.New(gatewayerr.VersionUnresolved, "model not found").WithModel(modelName)
	}
	if err != nil {
		return "", gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "failed to query models collection", err).WithModel(modelName)
	}

	var modelDoc struct {
		ActiveVersionID string `firestore:"activeVersionId"`
	}
	if err := doc.DataTo(&modelDoc); err != nil {
		return "", gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "failed to decode model document", err).WithModel(modelName)
	}
	if modelDoc.ActiveVersionID == "" {
		return "", gatewayerr.New(gatewayerr.VersionUnresolved, "model has no active version").WithModel(modelName)
	}

	versionDoc, err := doc.Ref.Collection("versions").Doc(modelDoc.ActiveVersionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", gatewayerr.New(gatewayerr.VersionUnresolved, "active version document missing").WithModel(modelName)
		}
		return "", gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "failed to fetch version document", err).WithModel(modelName)
	}

	var versionData struct {
		VersionLabel string `firestore:"versionLabel"`
	}
	if err := versionDoc.DataTo(&versionData); err != nil {
		return "", gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "failed to decode version document", err).WithModel(modelName)
	}
	if versionData.VersionLabel == "" {
		return "", gatewayerr.New(gatewayerr.VersionUnresolved, "version document missing versionLabel").WithModel(modelName)
	}

	return versionData.VersionLabel, nil
}
