package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Site configurations live in the "sites" collection and each
// site's push outcomes in a "push_history" sub-collection.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) pushHistory(siteID string) (*firestore.CollectionRef, error) {
	if siteID == "" {
		return nil, fmt.Errorf("siteID cannot be empty")
	}
	return f.client.Collection("sites").Doc(siteID).Collection("push_history"), nil
}

// UpsertSiteConfig saves a site configuration to the "sites" collection as a
// JSON blob. The plaintext token is excluded by the type's serialization.
func (f *FirestoreProvider) UpsertSiteConfig(ctx context.Context, site types.SiteConfig) error {
	if site.SiteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	jsonBytes, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal site config %s: %w", site.SiteID, err)
	}
	_, err = f.client.Collection("sites").Doc(site.SiteID).Set(ctx, map[string]interface{}{
		"json": string(jsonBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert site config %s: %w", site.SiteID, err)
	}
	return nil
}

// GetSiteConfig retrieves a site configuration from the "sites" collection.
func (f *FirestoreProvider) GetSiteConfig(ctx context.Context, siteID string) (types.SiteConfig, error) {
	if siteID == "" {
		return types.SiteConfig{}, fmt.Errorf("siteID cannot be empty")
	}
	doc, err := f.client.Collection("sites").Doc(siteID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.SiteConfig{}, fmt.Errorf("%w: site %s", ErrNotFound, siteID)
		}
		return types.SiteConfig{}, fmt.Errorf("failed to get site config %s: %w", siteID, err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "site config doc missing json", slog.String("siteID", siteID), slog.Any("err", err))
		return types.SiteConfig{}, fmt.Errorf("site config %s missing json: %w", siteID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "site config doc json not string", slog.String("siteID", siteID))
		return types.SiteConfig{}, fmt.Errorf("site config %s json not string", siteID)
	}

	var site types.SiteConfig
	if err := json.Unmarshal([]byte(jsonStr), &site); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal site config", slog.String("siteID", siteID), slog.Any("err", err))
		return types.SiteConfig{}, fmt.Errorf("failed to unmarshal site config %s: %w", siteID, err)
	}
	return site, nil
}

// ListSiteIDs retrieves the IDs of all documents in the "sites" collection.
func (f *FirestoreProvider) ListSiteIDs(ctx context.Context) ([]string, error) {
	iter := f.client.Collection("sites").Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating sites: %w", err)
		}
		ids = append(ids, doc.Ref.ID)
	}
	return ids, nil
}

// DeleteSiteConfig removes the site document. Recorded push history stays
// under the site path since Firestore does not cascade deletes.
func (f *FirestoreProvider) DeleteSiteConfig(ctx context.Context, siteID string) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	if _, err := f.client.Collection("sites").Doc(siteID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete site config %s: %w", siteID, err)
	}
	return nil
}

// RecordPushResult adds a push outcome to the site's "push_history"
// sub-collection as a JSON blob. The push ID is the document ID and the
// finish time is stored as a top-level field for ordered queries.
func (f *FirestoreProvider) RecordPushResult(ctx context.Context, siteID string, res types.PushResult) error {
	jsonBytes, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal push result: %w", err)
	}

	coll, err := f.pushHistory(siteID)
	if err != nil {
		return err
	}
	_, err = coll.Doc(res.ID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": res.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record push result: %w", err)
	}
	return nil
}

// GetLastPushResult retrieves the most recently finished push outcome for a
// site.
func (f *FirestoreProvider) GetLastPushResult(ctx context.Context, siteID string) (types.PushResult, error) {
	coll, err := f.pushHistory(siteID)
	if err != nil {
		return types.PushResult{}, err
	}

	// firestore automatically creates indexes for top-level fields
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.PushResult{}, fmt.Errorf("%w: no push results for site %s", ErrNotFound, siteID)
	}
	if err != nil {
		return types.PushResult{}, fmt.Errorf("failed to get latest push result: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "push result doc missing json", slog.String("docID", doc.Ref.ID), slog.String("siteID", siteID), slog.Any("err", err))
		return types.PushResult{}, fmt.Errorf("push result doc %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "push result doc json not string", slog.String("docID", doc.Ref.ID), slog.String("siteID", siteID))
		return types.PushResult{}, fmt.Errorf("push result doc %s 'json' field is not string", doc.Ref.ID)
	}

	var res types.PushResult
	if err := json.Unmarshal([]byte(jsonStr), &res); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal push result", slog.String("docID", doc.Ref.ID), slog.String("siteID", siteID), slog.Any("err", err))
		return types.PushResult{}, fmt.Errorf("failed to unmarshal push result (id=%s): %w", doc.Ref.ID, err)
	}
	return res, nil
}
