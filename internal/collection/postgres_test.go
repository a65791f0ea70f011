package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordlink/recordlink/internal/record"
)

func setupPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	coll, err := NewPostgres(db, "vendors", "ext_id", "id")
	require.NoError(t, err)
	return coll, mock, db
}

func docRows(t *testing.T, docs ...record.Record) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"local_key", "doc"})
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		require.NoError(t, err)
		key, _ := doc.Get("id")
		rows.AddRow(key, payload)
	}
	return rows
}

func TestNewPostgresRejectsBadName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgres(db, `vendors"; DROP TABLE x`, "ext_id", "id")
	assert.Error(t, err)
}

func TestPostgresGet(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors" WHERE doc @> \$1 ORDER BY local_key`).
		WillReturnRows(docRows(t, record.Record{"id": "P1", "ext_id": "EXT-1", "name": "Acme"}))

	got, err := coll.Get(context.Background(), record.Record{"ext_id": "EXT-1"})
	require.NoError(t, err)

	name, _ := got.Get("name")
	assert.Equal(t, "Acme", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t))

	_, err := coll.Get(context.Background(), record.Record{"ext_id": "EXT-404"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresGetRechecksContainment(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	// The row comes back from the @> prefilter but its nested snapshot has an
	// extra field, so exact matching must reject it.
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t, record.Record{
			"id":     "P1",
			"vendor": record.Record{"id": "P1", "name": "Acme"},
		}))

	_, err := coll.Get(context.Background(),
		record.Record{"vendor": record.Record{"id": "P1"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresFind(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t,
			record.Record{"id": "P1", "region": "eu"},
			record.Record{"id": "P2", "region": "eu"},
		))

	matches, err := coll.Find(context.Background(), record.Record{"region": "eu"})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsert(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "vendors" \(local_key, doc\) VALUES \(\$1, \$2\)`).
		WithArgs("P1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := coll.Insert(context.Background(), record.Record{"id": "P1", "name": "Acme"})
	require.NoError(t, err)

	key, _ := stored.Get("id")
	assert.Equal(t, "P1", key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertAssignsLocalKey(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "vendors"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := coll.Insert(context.Background(), record.Record{"name": "Acme"})
	require.NoError(t, err)
	assert.True(t, stored.Has("id"))
}

func TestPostgresUpdateWritesEveryMatch(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t,
			record.Record{"id": "P1", "region": "eu"},
			record.Record{"id": "P2", "region": "eu"},
		))
	mock.ExpectExec(`UPDATE "vendors" SET doc = \$2 WHERE local_key = \$1`).
		WithArgs("P1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "vendors" SET doc = \$2 WHERE local_key = \$1`).
		WithArgs("P2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := coll.Update(context.Background(),
		record.Record{"region": "eu"}, record.Record{"tier": "gold"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateNoMatchCommitsNothing(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t))
	mock.ExpectCommit()

	err := coll.Update(context.Background(),
		record.Record{"region": "nowhere"}, record.Record{"tier": "gold"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddOrUpdateChild(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t, record.Record{"id": "P1", "ext_id": "EXT-1"}))
	mock.ExpectExec(`UPDATE "vendors" SET doc = \$2 WHERE local_key = \$1`).
		WithArgs("P1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := coll.AddOrUpdateChildInCollection(context.Background(),
		record.Record{"ext_id": "EXT-1"}, "products",
		record.Record{"id": "C1", "name": "Widget"}, "id")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddOrUpdateChildParentMissing(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t))
	mock.ExpectRollback()

	err := coll.AddOrUpdateChildInCollection(context.Background(),
		record.Record{"ext_id": "EXT-404"}, "products",
		record.Record{"id": "C1"}, "id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresRemoveChildMissingEntryIsNoop(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t, record.Record{
			"id":       "P1",
			"ext_id":   "EXT-1",
			"products": []record.Record{{"id": "C2"}},
		}))
	mock.ExpectCommit()

	err := coll.RemoveChildFromCollection(context.Background(),
		record.Record{"ext_id": "EXT-1"}, "products", record.Record{"id": "C1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRemoveChild(t *testing.T) {
	coll, mock, db := setupPostgres(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT local_key, doc FROM "vendors"`).
		WillReturnRows(docRows(t, record.Record{
			"id":       "P1",
			"ext_id":   "EXT-1",
			"products": []record.Record{{"id": "C1"}, {"id": "C2"}},
		}))
	mock.ExpectExec(`UPDATE "vendors" SET doc = \$2 WHERE local_key = \$1`).
		WithArgs("P1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := coll.RemoveChildFromCollection(context.Background(),
		record.Record{"ext_id": "EXT-1"}, "products", record.Record{"id": "C1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
