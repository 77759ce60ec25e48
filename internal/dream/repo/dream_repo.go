package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/dream/entity"
)

// ErrNotFound is returned when no dream with the id exists for the owner.
var ErrNotFound = errors.New("dream not found")

const selectColumns = `id, user_email, title, dream_text, text, date, created, updated,
	category, dream_summary, global_final_interpretation, blocks, similar_artworks, context`

// dreamRow mirrors the dreams table, legacy columns included.
type dreamRow struct {
	ID                        string         `db:"id"`
	UserEmail                 string         `db:"user_email"`
	Title                     sql.NullString `db:"title"`
	DreamText                 sql.NullString `db:"dream_text"`
	Text                      sql.NullString `db:"text"`
	Date                      sql.NullInt64  `db:"date"`
	Created                   sql.NullInt64  `db:"created"`
	Updated                   sql.NullInt64  `db:"updated"`
	Category                  sql.NullString `db:"category"`
	DreamSummary              sql.NullString `db:"dream_summary"`
	GlobalFinalInterpretation sql.NullString `db:"global_final_interpretation"`
	Blocks                    sql.NullString `db:"blocks"`
	SimilarArtworks           sql.NullString `db:"similar_artworks"`
	Context                   sql.NullString `db:"context"`
}

// DreamRepo stores dreams in PostgreSQL. Every statement is scoped by owner.
type DreamRepo struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
}

func NewDreamRepo(db *sqlx.DB, logger *zap.SugaredLogger) *DreamRepo {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DreamRepo{db: db, logger: logger}
}

// List returns the owner's dreams, newest first.
func (r *DreamRepo) List(ctx context.Context, owner string) ([]*entity.Dream, error) {
	var rows []dreamRow
	q := `SELECT ` + selectColumns + ` FROM dreams WHERE user_email = $1 ORDER BY id DESC`
	if err := r.db.SelectContext(ctx, &rows, q, owner); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := make([]*entity.Dream, 0, len(rows))
	for i := range rows {
		out = append(out, r.toEntity(&rows[i]))
	}
	// legacy rows only get a date after normalization, so order here
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (r *DreamRepo) Get(ctx context.Context, owner, id string) (*entity.Dream, error) {
	var row dreamRow
	q := `SELECT ` + selectColumns + ` FROM dreams WHERE id = $1 AND user_email = $2`
	if err := r.db.GetContext(ctx, &row, q, id, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.toEntity(&row), nil
}

func (r *DreamRepo) Create(ctx context.Context, d *entity.Dream) error {
	blocks, artworks, err := encodeArrays(d)
	if err != nil {
		return err
	}
	q := `INSERT INTO dreams (id, user_email, title, dream_text, date, category, dream_summary,
		global_final_interpretation, blocks, similar_artworks, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, q,
		d.ID, d.User, d.Title, d.DreamText, d.Date, d.Category, d.DreamSummary,
		d.GlobalFinalInterpretation, blocks, artworks, d.Context,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update overwrites every canonical column of the dream. Legacy columns are
// left untouched.
func (r *DreamRepo) Update(ctx context.Context, d *entity.Dream) error {
	blocks, artworks, err := encodeArrays(d)
	if err != nil {
		return err
	}
	q := `UPDATE dreams SET title = $3, dream_text = $4, date = $5, category = $6,
		dream_summary = $7, global_final_interpretation = $8, blocks = $9,
		similar_artworks = $10, context = $11
		WHERE id = $1 AND user_email = $2`
	res, err := r.db.ExecContext(ctx, q,
		d.ID, d.User, d.Title, d.DreamText, d.Date, d.Category, d.DreamSummary,
		d.GlobalFinalInterpretation, blocks, artworks, d.Context,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *DreamRepo) Delete(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dreams WHERE id = $1 AND user_email = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeArrays(d *entity.Dream) (string, string, error) {
	blocks := d.Blocks
	if blocks == nil {
		blocks = []json.RawMessage{}
	}
	artworks := d.SimilarArtworks
	if artworks == nil {
		artworks = []entity.Artwork{}
	}
	b, err := json.Marshal(blocks)
	if err != nil {
		return "", "", fmt.Errorf("encode blocks: %w", err)
	}
	a, err := json.Marshal(artworks)
	if err != nil {
		return "", "", fmt.Errorf("encode similar artworks: %w", err)
	}
	return string(b), string(a), nil
}

// NormalizeEpoch converts a millisecond timestamp to seconds. Values that
// already look like seconds are returned as is.
func NormalizeEpoch(v int64) int64 {
	if v > 1e12 {
		return v / 1000
	}
	return v
}

func (r *DreamRepo) toEntity(row *dreamRow) *entity.Dream {
	d := &entity.Dream{
		ID:                        row.ID,
		User:                      row.UserEmail,
		Title:                     strPtr(row.Title),
		DreamText:                 row.DreamText.String,
		Category:                  strPtr(row.Category),
		DreamSummary:              strPtr(row.DreamSummary),
		GlobalFinalInterpretation: strPtr(row.GlobalFinalInterpretation),
		Context:                   strPtr(row.Context),
		Blocks:                    []json.RawMessage{},
		SimilarArtworks:           []entity.Artwork{},
	}
	if d.DreamText == "" && row.Text.Valid {
		d.DreamText = row.Text.String
	}
	switch {
	case row.Date.Valid:
		d.Date = NormalizeEpoch(row.Date.Int64)
	case row.Created.Valid:
		d.Date = NormalizeEpoch(row.Created.Int64)
	case row.Updated.Valid:
		d.Date = NormalizeEpoch(row.Updated.Int64)
	}

	if row.Blocks.Valid && row.Blocks.String != "" {
		var blocks []json.RawMessage
		if err := json.Unmarshal([]byte(row.Blocks.String), &blocks); err != nil {
			r.logger.Warnw("undecodable blocks column", "id", row.ID, "error", err)
		} else if blocks != nil {
			d.Blocks = blocks
		}
	}
	if row.SimilarArtworks.Valid && row.SimilarArtworks.String != "" {
		var artworks []entity.Artwork
		if err := json.Unmarshal([]byte(row.SimilarArtworks.String), &artworks); err != nil {
			r.logger.Warnw("undecodable similar_artworks column", "id", row.ID, "error", err)
		} else if artworks != nil {
			d.SimilarArtworks = artworks
		}
	}
	return d
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
