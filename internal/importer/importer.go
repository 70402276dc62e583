// Package importer loads tracked properties from CSV exports.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jszwec/csvutil"
	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/database"
	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/models"
)

// Row is one CSV line. The header must name these columns; extra columns are ignored.
type Row struct {
	OwnerID    string `csv:"owner_id" validate:"required,max=64"`
	Name       string `csv:"name" validate:"required,max=255"`
	Location   string `csv:"location,omitempty" validate:"max=255"`
	ExternalID string `csv:"external_id,omitempty" validate:"max=255"`
	Primary    string `csv:"primary,omitempty"`
	Currency   string `csv:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// Store is the persistence the importer needs
type Store interface {
	FindPropertyByIdentifier(ctx context.Context, ownerID, externalID string) (*models.TrackedProperty, error)
	FindPropertyByName(ctx context.Context, ownerID, name, location string) (*models.TrackedProperty, error)
	CreateProperty(ctx context.Context, p *models.TrackedProperty) error
	UpdateProperty(ctx context.Context, p *models.TrackedProperty) error
}

// Result summarizes an import
type Result struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Importer upserts tracked properties
type Importer struct {
	store           Store
	validate        *validator.Validate
	defaultCurrency string
	log             *logrus.Entry
}

// New creates an importer
func New(store Store, defaultCurrency string) *Importer {
	return &Importer{
		store:           store,
		validate:        validator.New(),
		defaultCurrency: strings.ToUpper(defaultCurrency),
		log:             logging.Component("importer"),
	}
}

// Import reads r as CSV with a header line. Rows are matched first by provider
// identifier, then by name and location; unmatched rows are created.
// A bad row is reported and skipped without aborting the import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Result{}, nil
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	result := &Result{}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var row Row
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return result, fmt.Errorf("line %d: %w", line, err)
			}
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		created, err := im.upsert(ctx, row)
		switch {
		case err != nil:
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
		case created:
			result.Created++
		default:
			result.Updated++
		}
	}

	im.log.Infof("Import finished: %d created, %d updated, %d skipped", result.Created, result.Updated, result.Skipped)
	return result, nil
}

func (im *Importer) upsert(ctx context.Context, row Row) (bool, error) {
	row.OwnerID = strings.TrimSpace(row.OwnerID)
	row.Name = strings.TrimSpace(row.Name)
	row.Location = strings.TrimSpace(row.Location)
	row.ExternalID = strings.TrimSpace(row.ExternalID)
	row.Currency = strings.ToUpper(strings.TrimSpace(row.Currency))

	if err := im.validate.Struct(row); err != nil {
		return false, fmt.Errorf("invalid row: %w", err)
	}

	// a blank primary column leaves the flag of an existing row alone
	var primary *bool
	if p := strings.TrimSpace(row.Primary); p != "" {
		v, err := strconv.ParseBool(p)
		if err != nil {
			return false, fmt.Errorf("invalid primary %q", row.Primary)
		}
		primary = &v
	}

	existing, err := im.find(ctx, row)
	if err != nil {
		return false, err
	}

	if existing == nil {
		p := &models.TrackedProperty{
			OwnerID:            row.OwnerID,
			DisplayName:        row.Name,
			Location:           row.Location,
			ExternalIdentifier: row.ExternalID,
			IsPrimaryTarget:    primary != nil && *primary,
			PreferredCurrency:  im.currency(row.Currency),
		}
		if err := im.store.CreateProperty(ctx, p); err != nil {
			return false, fmt.Errorf("create %q: %w", row.Name, err)
		}
		return true, nil
	}

	existing.DisplayName = row.Name
	existing.Location = row.Location
	if primary != nil {
		existing.IsPrimaryTarget = *primary
	}
	if row.ExternalID != "" {
		existing.ExternalIdentifier = row.ExternalID
	}
	if row.Currency != "" {
		existing.PreferredCurrency = row.Currency
	}
	if err := im.store.UpdateProperty(ctx, existing); err != nil {
		return false, fmt.Errorf("update %s: %w", existing.ID, err)
	}
	return false, nil
}

func (im *Importer) find(ctx context.Context, row Row) (*models.TrackedProperty, error) {
	if row.ExternalID != "" {
		p, err := im.store.FindPropertyByIdentifier(ctx, row.OwnerID, row.ExternalID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("lookup by identifier: %w", err)
		}
	}
	p, err := im.store.FindPropertyByName(ctx, row.OwnerID, row.Name, row.Location)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by name: %w", err)
	}
	return p, nil
}

func (im *Importer) currency(c string) string {
	if c != "" {
		return c
	}
	if im.defaultCurrency != "" {
		return im.defaultCurrency
	}
	return "USD"
}
