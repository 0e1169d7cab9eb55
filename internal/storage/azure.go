package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/sirupsen/logrus"
)

// AzureArchive keeps a JSON copy of every persisted batch in Blob Storage
type AzureArchive struct {
	client        *azblob.Client
	containerName string
}

var _ ArchiveInterface = (*AzureArchive)(nil)

// NewAzureArchive connects with the default Azure credential chain and
// makes sure the container exists
func NewAzureArchive(ctx context.Context, accountName, containerName string) (*AzureArchive, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}
	if containerName == "" {
		containerName = "mentions"
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	archive := &AzureArchive{client: client, containerName: containerName}
	if err := archive.ensureContainer(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return archive, nil
}

func (a *AzureArchive) ensureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return fmt.Errorf("failed to create container: %w", err)
		}
		logrus.Debugf("Container %s already exists", a.containerName)
		return nil
	}

	logrus.Infof("Created container %s", a.containerName)
	return nil
}

func (a *AzureArchive) Store(ctx context.Context, name string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.containerName, name, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", name, err)
	}

	logrus.Debugf("Archived %s (%d bytes)", name, len(data))
	return nil
}

func (a *AzureArchive) Retrieve(ctx context.Context, name string) ([]byte, error) {
	response, err := a.client.DownloadStream(ctx, a.containerName, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", name, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}
	return data, nil
}

func (a *AzureArchive) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				names = append(names, *blob.Name)
			}
		}
	}

	return names, nil
}

func (a *AzureArchive) Delete(ctx context.Context, name string) error {
	if _, err := a.client.DeleteBlob(ctx, a.containerName, name, nil); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

const (
	archivePrefix    = "mentions/"
	archiveDayLayout = "2006-01-02"
)

// ArchiveBatch writes mentions as one JSON blob named after the flush time,
// partitioned by day
func ArchiveBatch(ctx context.Context, archive ArchiveInterface, mentions []models.Mention, at time.Time) (string, error) {
	data, err := json.Marshal(mentions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal mentions: %w", err)
	}

	at = at.UTC()
	name := fmt.Sprintf("%s%s/batch-%s.json", archivePrefix, at.Format(archiveDayLayout), at.Format("150405.000000000"))
	if err := archive.Store(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// LoadArchivedDay reads back every batch archived on day, oldest first
func LoadArchivedDay(ctx context.Context, archive ArchiveInterface, day time.Time) ([]models.Mention, error) {
	names, err := archive.List(ctx, archivePrefix+day.UTC().Format(archiveDayLayout)+"/")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var mentions []models.Mention
	for _, name := range names {
		data, err := archive.Retrieve(ctx, name)
		if err != nil {
			return nil, err
		}

		var batch []models.Mention
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		mentions = append(mentions, batch...)
	}
	return mentions, nil
}

// PruneArchive deletes archived batches from days before the cutoff and
// returns how many were removed. Blobs outside the day layout are left alone.
func PruneArchive(ctx context.Context, archive ArchiveInterface, before time.Time) (int, error) {
	names, err := archive.List(ctx, archivePrefix)
	if err != nil {
		return 0, err
	}

	cutoff := before.UTC().Truncate(24 * time.Hour)
	removed := 0
	for _, name := range names {
		day, _, ok := strings.Cut(strings.TrimPrefix(name, archivePrefix), "/")
		if !ok {
			continue
		}
		date, err := time.Parse(archiveDayLayout, day)
		if err != nil || !date.Before(cutoff) {
			continue
		}

		if err := archive.Delete(ctx, name); err != nil {
			return removed, err
		}
		removed++
	}

	logrus.Infof("Pruned %d archived batches older than %s", removed, cutoff.Format(archiveDayLayout))
	return removed, nil
}
