package store

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/internal/credential/models"
	id "attestor/pkg/domain"
)

// stubRow feeds scanRecord a fixed column set without a database.
type stubRow struct {
	values []any
}

func (r stubRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch target := d.(type) {
		case *string:
			*target = r.values[i].(string)
		case *bool:
			*target = r.values[i].(bool)
		case *[]byte:
			*target = r.values[i].([]byte)
		case *sql.NullString:
			*target = r.values[i].(sql.NullString)
		case *time.Time:
			*target = r.values[i].(time.Time)
		}
	}
	return nil
}

func rowValues(recordID, issuerDID, holderDID string, offPlatform bool) []any {
	return []any{
		recordID,
		strings.Repeat("ab", 32),
		issuerDID,
		holderDID,
		"",             // payload
		false,          // sealed
		"",             // claim_text
		[]byte("null"), // skills
		"",             // file_url
		sql.NullString{},
		"active",
		false, // visible
		offPlatform,
		time.Now().UTC(),
	}
}

func TestScanRecordOffPlatformStub(t *testing.T) {
	row := stubRow{values: rowValues(id.NewRecordID().String(), "", "", true)}

	record, err := scanRecord(row)
	require.NoError(t, err, "stub rows without party identities must scan cleanly")
	assert.True(t, record.OffPlatform)
	assert.True(t, record.IssuerDID.IsNil())
	assert.True(t, record.HolderDID.IsNil())
	assert.Equal(t, models.StatusActive, record.Status)
	assert.Equal(t, []string{}, record.Skills)
}

func TestScanRecordRejectsMalformedDID(t *testing.T) {
	row := stubRow{values: rowValues(id.NewRecordID().String(), "did:bad did", "did:example:holder", false)}

	_, err := scanRecord(row)
	assert.ErrorContains(t, err, "parse issuer did")
}
