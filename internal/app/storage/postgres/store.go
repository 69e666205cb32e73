// Package postgres implements the storage interfaces on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
	"github.com/zcy-charity/jar-service/internal/app/storage"
)

// Store implements JarStore, TagStore and VolunteerStore on a Postgres
// connection pool.
type Store struct {
	db *sql.DB
}

var _ storage.JarStore = (*Store)(nil)
var _ storage.TagStore = (*Store)(nil)
var _ storage.VolunteerStore = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- JarStore ----------------------------------------------------------------

func (s *Store) CreateJar(ctx context.Context, j jar.Jar, tags []jar.Tag, album []jar.AlbumImage) (jar.Jar, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if j.DateAdded.IsZero() {
		j.DateAdded = now
	}
	j.UpdatedAt = now
	j.DateClosed = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return jar.Jar{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jars (id, external_id, title, description, volunteer_id, goal,
			title_img_ref, img_alt, display_order, date_added, date_closed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11)`,
		j.ID, j.ExternalID, j.Title, j.Description, j.VolunteerID, toNullInt64(j.Goal),
		j.TitleImgRef, j.ImgAlt, j.DisplayOrder, j.DateAdded, j.UpdatedAt)
	if err != nil {
		return jar.Jar{}, fmt.Errorf("insert jar: %w", err)
	}

	if err := replaceTagLinks(ctx, tx, j.ID, tags); err != nil {
		return jar.Jar{}, err
	}
	for i, img := range album {
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		if img.DateAdded.IsZero() {
			img.DateAdded = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jar_album_images (id, jar_id, img_ref, img_alt, position, date_added)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			img.ID, j.ID, img.ImgRef, img.ImgAlt, i, img.DateAdded)
		if err != nil {
			return jar.Jar{}, fmt.Errorf("insert album image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return jar.Jar{}, fmt.Errorf("commit tx: %w", err)
	}
	j.Tags = tagNames(tags)
	return j, nil
}

func (s *Store) UpdateJar(ctx context.Context, j jar.Jar, tags []jar.Tag) (jar.Jar, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return jar.Jar{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	j.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE jars SET title = $1, description = $2, goal = $3, title_img_ref = $4,
			img_alt = $5, display_order = $6, updated_at = $7
		WHERE id = $8`,
		j.Title, j.Description, toNullInt64(j.Goal), j.TitleImgRef,
		j.ImgAlt, j.DisplayOrder, j.UpdatedAt, j.ID)
	if err != nil {
		return jar.Jar{}, fmt.Errorf("update jar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return jar.Jar{}, fmt.Errorf("jar %s: %w", j.ID, storage.ErrNotFound)
	}

	if err := replaceTagLinks(ctx, tx, j.ID, tags); err != nil {
		return jar.Jar{}, err
	}
	if err := tx.Commit(); err != nil {
		return jar.Jar{}, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetJar(ctx, j.ID)
}

const jarColumns = `j.id, j.external_id, j.title, j.description, j.volunteer_id, j.goal,
	j.title_img_ref, j.img_alt, j.display_order, j.date_added, j.date_closed, j.updated_at`

func (s *Store) GetJar(ctx context.Context, id string) (jar.Jar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jarColumns+`,
			COALESCE((SELECT array_agg(t.name ORDER BY t.name)
				FROM jar_tag_links l JOIN jar_tags t ON t.id = l.tag_id
				WHERE l.jar_id = j.id), '{}')
		FROM jars j WHERE j.id = $1`, id)

	j, tags, err := scanJar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jar.Jar{}, fmt.Errorf("jar %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return jar.Jar{}, fmt.Errorf("get jar: %w", err)
	}
	j.Tags = tags
	return j, nil
}

// summaryQuery resolves each jar's latest sample through a lateral join so a
// listing stays a single bounded query no matter how many jars match.
const summaryQuery = `
	SELECT ` + jarColumns + `,
		v.public_name,
		ls.amount,
		CASE WHEN j.goal > 0 AND ls.amount IS NOT NULL
			THEN ls.amount * 100.0 / j.goal END AS fill_percentage,
		COALESCE(t.names, '{}')
	FROM jars j
	JOIN volunteers v ON v.id = j.volunteer_id
	LEFT JOIN LATERAL (
		SELECT s.amount FROM jar_balance_samples s
		WHERE s.jar_id = j.id
		ORDER BY s.observed_at DESC, s.id DESC
		LIMIT 1
	) ls ON TRUE
	LEFT JOIN LATERAL (
		SELECT array_agg(jt.name ORDER BY jt.name) AS names
		FROM jar_tag_links l JOIN jar_tags jt ON jt.id = l.tag_id
		WHERE l.jar_id = j.id
	) t ON TRUE`

func (s *Store) GetJarSummary(ctx context.Context, id string) (jar.Summary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery+` WHERE j.id = $1`, id)
	if err != nil {
		return jar.Summary{}, fmt.Errorf("get jar summary: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return jar.Summary{}, fmt.Errorf("get jar summary: %w", err)
		}
		return jar.Summary{}, fmt.Errorf("jar %s: %w", id, storage.ErrNotFound)
	}
	sum, err := scanSummary(rows)
	if err != nil {
		return jar.Summary{}, fmt.Errorf("get jar summary: %w", err)
	}
	return sum, nil
}

func (s *Store) ListJars(ctx context.Context, f jar.Filter) ([]jar.Summary, error) {
	query := summaryQuery
	var args []interface{}
	where := ""
	if f.Search != "" {
		args = append(args, escapeLike(f.Search))
		where = fmt.Sprintf(` WHERE j.title ILIKE '%%' || $%d || '%%' ESCAPE '\'`, len(args))
	}
	if f.Tag != "" {
		args = append(args, f.Tag)
		clause := fmt.Sprintf(`EXISTS (
			SELECT 1 FROM jar_tag_links l JOIN jar_tags jt ON jt.id = l.tag_id
			WHERE l.jar_id = j.id AND jt.name = $%d)`, len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	query += where + orderClause(f.Ordering)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jars: %w", err)
	}
	defer rows.Close()

	var result []jar.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list jars: %w", err)
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jars: %w", err)
	}
	return result, nil
}

func (s *Store) ListOpenJars(ctx context.Context) ([]jar.Jar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jarColumns+`,
			COALESCE((SELECT array_agg(t.name ORDER BY t.name)
				FROM jar_tag_links l JOIN jar_tags t ON t.id = l.tag_id
				WHERE l.jar_id = j.id), '{}')
		FROM jars j
		WHERE j.date_closed IS NULL
		ORDER BY j.date_added ASC, j.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list open jars: %w", err)
	}
	defer rows.Close()

	var result []jar.Jar
	for rows.Next() {
		j, tags, err := scanJar(rows)
		if err != nil {
			return nil, fmt.Errorf("list open jars: %w", err)
		}
		j.Tags = tags
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list open jars: %w", err)
	}
	return result, nil
}

func (s *Store) ListBannerJars(ctx context.Context, limit int) ([]jar.Summary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery+`
		WHERE j.date_closed IS NULL
		ORDER BY j.display_order ASC, j.date_added DESC, j.id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list banner jars: %w", err)
	}
	defer rows.Close()

	var result []jar.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list banner jars: %w", err)
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list banner jars: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteJar(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jars WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete jar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("jar %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) RecordSyncResult(ctx context.Context, jarID string, upd jar.SyncUpdate) (jar.BalanceSample, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return jar.BalanceSample{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var goal sql.NullInt64
	var dateClosed sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT goal, date_closed FROM jars WHERE id = $1 FOR UPDATE`, jarID).
		Scan(&goal, &dateClosed)
	if errors.Is(err, sql.ErrNoRows) {
		return jar.BalanceSample{}, fmt.Errorf("jar %s: %w", jarID, storage.ErrNotFound)
	}
	if err != nil {
		return jar.BalanceSample{}, fmt.Errorf("lock jar: %w", err)
	}

	if upd.Goal != nil {
		goal = sql.NullInt64{Int64: *upd.Goal, Valid: true}
	}
	if upd.CloseAt != nil && !dateClosed.Valid {
		dateClosed = sql.NullTime{Time: upd.CloseAt.UTC(), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE jars SET goal = $1, date_closed = $2, updated_at = $3 WHERE id = $4`,
		goal, dateClosed, time.Now().UTC(), jarID)
	if err != nil {
		return jar.BalanceSample{}, fmt.Errorf("update jar: %w", err)
	}

	var prev int64
	var prevAmount sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT amount FROM jar_balance_samples
		WHERE jar_id = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT 1`, jarID).Scan(&prevAmount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return jar.BalanceSample{}, fmt.Errorf("load previous sample: %w", err)
	}
	if prevAmount.Valid {
		prev = prevAmount.Int64
	}

	var amount int64
	if upd.Amount != nil {
		amount = *upd.Amount
	}
	observedAt := upd.ObservedAt.UTC()
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	sample := jar.BalanceSample{
		JarID:       jarID,
		Amount:      &amount,
		IncomeDelta: amount - prev,
		ObservedAt:  observedAt,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO jar_balance_samples (jar_id, amount, income_delta, observed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		jarID, amount, sample.IncomeDelta, observedAt).Scan(&sample.ID)
	if err != nil {
		return jar.BalanceSample{}, fmt.Errorf("insert sample: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return jar.BalanceSample{}, fmt.Errorf("commit tx: %w", err)
	}
	return sample, nil
}

func (s *Store) ListSamples(ctx context.Context, jarID string) ([]jar.BalanceSample, error) {
	if _, err := s.GetJar(ctx, jarID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jar_id, amount, income_delta, observed_at
		FROM jar_balance_samples
		WHERE jar_id = $1
		ORDER BY observed_at DESC, id DESC`, jarID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var result []jar.BalanceSample
	for rows.Next() {
		var sample jar.BalanceSample
		var amount sql.NullInt64
		if err := rows.Scan(&sample.ID, &sample.JarID, &amount, &sample.IncomeDelta, &sample.ObservedAt); err != nil {
			return nil, fmt.Errorf("list samples: %w", err)
		}
		if amount.Valid {
			v := amount.Int64
			sample.Amount = &v
		}
		result = append(result, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return result, nil
}

func (s *Store) ListAlbum(ctx context.Context, jarID string) ([]jar.AlbumImage, error) {
	if _, err := s.GetJar(ctx, jarID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jar_id, img_ref, img_alt, position, date_added
		FROM jar_album_images
		WHERE jar_id = $1
		ORDER BY position ASC`, jarID)
	if err != nil {
		return nil, fmt.Errorf("list album: %w", err)
	}
	defer rows.Close()

	var result []jar.AlbumImage
	for rows.Next() {
		var img jar.AlbumImage
		if err := rows.Scan(&img.ID, &img.JarID, &img.ImgRef, &img.ImgAlt, &img.Position, &img.DateAdded); err != nil {
			return nil, fmt.Errorf("list album: %w", err)
		}
		result = append(result, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list album: %w", err)
	}
	return result, nil
}

func (s *Store) AddAlbumImage(ctx context.Context, img jar.AlbumImage) (jar.AlbumImage, error) {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.DateAdded.IsZero() {
		img.DateAdded = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO jar_album_images (id, jar_id, img_ref, img_alt, position, date_added)
		SELECT $1, $2, $3, $4, COALESCE(MAX(position) + 1, 0), $5
		FROM jar_album_images WHERE jar_id = $2
		RETURNING position`,
		img.ID, img.JarID, img.ImgRef, img.ImgAlt, img.DateAdded).Scan(&img.Position)
	if err != nil {
		return jar.AlbumImage{}, fmt.Errorf("insert album image: %w", err)
	}
	return img, nil
}

// --- TagStore ----------------------------------------------------------------

func (s *Store) CreateTag(ctx context.Context, t jar.Tag) (jar.Tag, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jar_tags (id, name) VALUES ($1, $2)`, t.ID, t.Name)
	if err != nil {
		return jar.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return t, nil
}

func (s *Store) GetTagByName(ctx context.Context, name string) (jar.Tag, error) {
	var t jar.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM jar_tags WHERE name = $1`, name).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return jar.Tag{}, fmt.Errorf("tag %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return jar.Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

func (s *Store) ListTags(ctx context.Context) ([]jar.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM jar_tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var result []jar.Tag
	for rows.Next() {
		var t jar.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteTag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jar_tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- VolunteerStore ----------------------------------------------------------

const volunteerColumns = `id, email, password_hash, public_name, first_name, last_name,
	phone_number, additional_info, photo_ref, photo_alt, active, created_at, updated_at`

func (s *Store) CreateVolunteer(ctx context.Context, v volunteer.Volunteer) (volunteer.Volunteer, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO volunteers (`+volunteerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.Email, v.PasswordHash, v.PublicName, v.FirstName, v.LastName,
		v.PhoneNumber, v.AdditionalInfo, v.PhotoRef, v.PhotoAlt, v.Active,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return volunteer.Volunteer{}, fmt.Errorf("insert volunteer: %w", err)
	}
	return v, nil
}

func (s *Store) UpdateVolunteer(ctx context.Context, v volunteer.Volunteer) (volunteer.Volunteer, error) {
	v.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE volunteers SET email = $1, password_hash = $2, public_name = $3,
			first_name = $4, last_name = $5, phone_number = $6, additional_info = $7,
			photo_ref = $8, photo_alt = $9, active = $10, updated_at = $11
		WHERE id = $12`,
		v.Email, v.PasswordHash, v.PublicName, v.FirstName, v.LastName,
		v.PhoneNumber, v.AdditionalInfo, v.PhotoRef, v.PhotoAlt, v.Active,
		v.UpdatedAt, v.ID)
	if err != nil {
		return volunteer.Volunteer{}, fmt.Errorf("update volunteer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return volunteer.Volunteer{}, fmt.Errorf("volunteer %s: %w", v.ID, storage.ErrNotFound)
	}
	return v, nil
}

func (s *Store) GetVolunteer(ctx context.Context, id string) (volunteer.Volunteer, error) {
	return s.getVolunteer(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetVolunteerByEmail(ctx context.Context, email string) (volunteer.Volunteer, error) {
	return s.getVolunteer(ctx, `WHERE email = $1`, email)
}

func (s *Store) getVolunteer(ctx context.Context, where string, arg interface{}) (volunteer.Volunteer, error) {
	var v volunteer.Volunteer
	err := s.db.QueryRowContext(ctx,
		`SELECT `+volunteerColumns+` FROM volunteers `+where, arg).
		Scan(&v.ID, &v.Email, &v.PasswordHash, &v.PublicName, &v.FirstName, &v.LastName,
			&v.PhoneNumber, &v.AdditionalInfo, &v.PhotoRef, &v.PhotoAlt, &v.Active,
			&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return volunteer.Volunteer{}, fmt.Errorf("volunteer %v: %w", arg, storage.ErrNotFound)
	}
	if err != nil {
		return volunteer.Volunteer{}, fmt.Errorf("get volunteer: %w", err)
	}
	return v, nil
}

func (s *Store) ListVolunteers(ctx context.Context) ([]volunteer.Volunteer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+volunteerColumns+` FROM volunteers ORDER BY public_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list volunteers: %w", err)
	}
	defer rows.Close()

	var result []volunteer.Volunteer
	for rows.Next() {
		var v volunteer.Volunteer
		err := rows.Scan(&v.ID, &v.Email, &v.PasswordHash, &v.PublicName, &v.FirstName,
			&v.LastName, &v.PhoneNumber, &v.AdditionalInfo, &v.PhotoRef, &v.PhotoAlt,
			&v.Active, &v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("list volunteers: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list volunteers: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteVolunteer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM volunteers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete volunteer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("volunteer %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJar(row rowScanner) (jar.Jar, []string, error) {
	var j jar.Jar
	var goal sql.NullInt64
	var dateClosed sql.NullTime
	var tags pq.StringArray
	err := row.Scan(&j.ID, &j.ExternalID, &j.Title, &j.Description, &j.VolunteerID,
		&goal, &j.TitleImgRef, &j.ImgAlt, &j.DisplayOrder, &j.DateAdded, &dateClosed,
		&j.UpdatedAt, &tags)
	if err != nil {
		return jar.Jar{}, nil, err
	}
	if goal.Valid {
		v := goal.Int64
		j.Goal = &v
	}
	if dateClosed.Valid {
		t := dateClosed.Time
		j.DateClosed = &t
	}
	return j, []string(tags), nil
}

func scanSummary(row rowScanner) (jar.Summary, error) {
	var sum jar.Summary
	var goal, currentSum sql.NullInt64
	var dateClosed sql.NullTime
	var fill sql.NullFloat64
	var tags pq.StringArray
	err := row.Scan(&sum.ID, &sum.ExternalID, &sum.Title, &sum.Description, &sum.VolunteerID,
		&goal, &sum.TitleImgRef, &sum.ImgAlt, &sum.DisplayOrder, &sum.DateAdded, &dateClosed,
		&sum.UpdatedAt, &sum.VolunteerName, &currentSum, &fill, &tags)
	if err != nil {
		return jar.Summary{}, err
	}
	if goal.Valid {
		v := goal.Int64
		sum.Goal = &v
	}
	if dateClosed.Valid {
		t := dateClosed.Time
		sum.DateClosed = &t
	}
	if currentSum.Valid {
		v := currentSum.Int64
		sum.CurrentSum = &v
	}
	if fill.Valid {
		v := fill.Float64
		sum.FillPercentage = &v
	}
	sum.Tags = []string(tags)
	return sum, nil
}

func replaceTagLinks(ctx context.Context, tx *sql.Tx, jarID string, tags []jar.Tag) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM jar_tag_links WHERE jar_id = $1`, jarID); err != nil {
		return fmt.Errorf("clear tag links: %w", err)
	}
	for _, t := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jar_tag_links (jar_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, jarID, t.ID)
		if err != nil {
			return fmt.Errorf("link tag %s: %w", t.Name, err)
		}
	}
	return nil
}

func orderClause(o jar.Ordering) string {
	switch o {
	case jar.OrderFillAsc:
		return ` ORDER BY fill_percentage ASC NULLS LAST, j.date_added DESC, j.id ASC`
	case jar.OrderFillDesc:
		return ` ORDER BY fill_percentage DESC NULLS LAST, j.date_added DESC, j.id ASC`
	case jar.OrderDateAsc:
		return ` ORDER BY j.date_added ASC, j.id ASC`
	default:
		return ` ORDER BY j.date_added DESC, j.id ASC`
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralises LIKE metacharacters so a search term matches as a
// literal substring, the same way the in-memory store matches it.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func tagNames(tags []jar.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
