package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

// legacyStep upgrades one aspect of a database created before versioned
// migrations existed. Each step inspects the live schema and does nothing
// when its target shape is already present.
type legacyStep struct {
	name    string
	pending func(ctx context.Context, tx *sqlx.Tx) (bool, error)
	apply   func(ctx context.Context, tx *sqlx.Tx, env legacyEnv) error
}

type legacyEnv struct {
	owner Owner
	now   int64
}

// legacySteps run in this order; later steps rely on the shapes the
// earlier ones produce.
var legacySteps = []legacyStep{
	{name: "card-ids-and-users", pending: needsCardIDsAndUsers, apply: applyCardIDsAndUsers},
	{name: "progress-history", pending: needsProgressHistory, apply: applyProgressHistory},
	{name: "deck-slugs", pending: needsDeckSlugs, apply: applyDeckSlugs},
	{name: "rating-values", pending: needsRatingValues, apply: applyRatingValues},
	{name: "card-images", pending: needsCardImages, apply: applyCardImages},
}

const usersTableDDL = `CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL COLLATE NOCASE UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    is_admin INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT 0
)`

const ratingCheck = `CHECK (rating IN ('up','down','more_info','ignore'))`

const categoryCheck = `CHECK (category IN ('Again','Hard','Good','Easy'))`

// runLegacySteps applies every pending legacy step on one dedicated
// connection with foreign key enforcement off, so that dropping a rebuilt
// table does not cascade into the rows that reference it.
func (s *Store) runLegacySteps(ctx context.Context, owner Owner) (err error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := conn.ExecContext(context.WithoutCancel(ctx), `PRAGMA foreign_keys = ON`); fkErr != nil && err == nil {
			err = fmt.Errorf("failed to enable foreign keys: %w", fkErr)
		}
	}()

	env := legacyEnv{owner: owner, now: s.millis()}
	for _, step := range legacySteps {
		applied, err := runLegacyStep(ctx, conn, step, env)
		if err != nil {
			return fmt.Errorf("legacy step %s: %w", step.name, err)
		}
		if applied {
			slog.Info("Applied legacy schema step", "step", step.name)
		}
	}

	return checkForeignKeys(ctx, conn)
}

func runLegacyStep(ctx context.Context, conn *sqlx.Conn, step legacyStep, env legacyEnv) (bool, error) {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	pending, err := step.pending(ctx, tx)
	if err != nil {
		return false, err
	}
	if !pending {
		return false, nil
	}
	if err := step.apply(ctx, tx, env); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

func checkForeignKeys(ctx context.Context, conn *sqlx.Conn) error {
	rows, err := conn.QueryxContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	defer rows.Close()

	var violations []string
	for rows.Next() {
		var table, parent string
		var rowID sql.NullInt64
		var fkID int
		if err := rows.Scan(&table, &rowID, &parent, &fkID); err != nil {
			return fmt.Errorf("failed to scan foreign key violation: %w", err)
		}
		violations = append(violations, fmt.Sprintf("%s row %d -> %s", table, rowID.Int64, parent))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	if len(violations) > 0 {
		return fmt.Errorf("foreign key violations after migration: %s", strings.Join(violations, ", "))
	}
	return nil
}

// (a) Progress and ratings keyed by card text, or predating users, are
// re-keyed by (user_id, card_id). Rows without a user go to the owner.
func needsCardIDsAndUsers(ctx context.Context, tx *sqlx.Tx) (bool, error) {
	for _, table := range []string{"progress", "ratings"} {
		cols, err := tableColumns(ctx, tx, table)
		if err != nil {
			return false, err
		}
		if needsRekey(cols) {
			return true, nil
		}
	}
	return false, nil
}

func applyCardIDsAndUsers(ctx context.Context, tx *sqlx.Tx, env legacyEnv) error {
	if _, err := tx.ExecContext(ctx, usersTableDDL); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	ownerID, err := ensureOwner(ctx, tx, env)
	if err != nil {
		return err
	}
	deckCol, err := deckRefColumn(ctx, tx)
	if err != nil {
		return err
	}

	progressCols, err := tableColumns(ctx, tx, "progress")
	if err != nil {
		return err
	}
	if needsRekey(progressCols) {
		user, userJoin, args := userSource(progressCols, "p", ownerID)
		ddl := `CREATE TABLE %s (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    deck_id ` + deckCol + `,
    category TEXT NOT NULL,
    PRIMARY KEY (user_id, card_id)
)`
		copySQL := `INSERT OR IGNORE INTO %s (user_id, card_id, deck_id, category)
SELECT ` + user + `, c.id, c.deck_id, p.category FROM progress p ` + cardJoin(progressCols, "p") + userJoin
		if err := rebuildTable(ctx, tx, "progress", ddl, copySQL, args...); err != nil {
			return err
		}
	}

	ratingCols, err := tableColumns(ctx, tx, "ratings")
	if err != nil {
		return err
	}
	if needsRekey(ratingCols) {
		user, userJoin, args := userSource(ratingCols, "r", ownerID)
		ddl := `CREATE TABLE %s (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    deck_id ` + deckCol + `,
    rating TEXT NOT NULL ` + ratingCheck + `,
    updated_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, card_id)
)`
		copySQL := `INSERT OR IGNORE INTO %s (user_id, card_id, deck_id, rating, updated_at)
SELECT ` + user + `, c.id, c.deck_id, r.rating, ? FROM ratings r ` + cardJoin(ratingCols, "r") + userJoin
		args = append(args, env.now)
		if err := rebuildTable(ctx, tx, "ratings", ddl, copySQL, args...); err != nil {
			return err
		}
	}
	return nil
}

func ensureOwner(ctx context.Context, tx *sqlx.Tx, env legacyEnv) (int64, error) {
	if env.owner.Email == "" {
		return 0, errors.New("an owner email is required to assign existing progress")
	}

	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM users WHERE email = ?`, env.owner.Email)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `UPDATE users SET is_admin = 1 WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to promote owner: %w", err)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		// The password is set when the administrator is ensured at startup.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users (email, name, password_hash, is_admin, created_at)
			VALUES (?, ?, '', 1, ?)
		`, env.owner.Email, env.owner.Name, env.now)
		if err != nil {
			return 0, fmt.Errorf("failed to create owner: %w", err)
		}
		return res.LastInsertId()
	default:
		return 0, fmt.Errorf("failed to find owner: %w", err)
	}
}

// userSource returns the SELECT expression for user_id, the join that
// drops rows of unknown users, and the bound arguments.
func userSource(cols map[string]bool, alias string, ownerID int64) (string, string, []any) {
	if cols["user_id"] {
		return alias + ".user_id", " JOIN users u ON u.id = " + alias + ".user_id", nil
	}
	return "?", "", []any{ownerID}
}

// needsRekey reports whether a progress or ratings table still predates
// numeric card ids or users.
func needsRekey(cols map[string]bool) bool {
	return len(cols) > 0 && (cols["card_key"] || !cols["user_id"])
}

// cardJoin resolves a legacy row to its card, by text key or by id.
func cardJoin(cols map[string]bool, alias string) string {
	if cols["card_key"] {
		return "JOIN cards c ON (c.question || '|||' || c.answer) = " + alias + ".card_key"
	}
	return "JOIN cards c ON c.id = " + alias + ".card_id"
}

// (b) Progress becomes an append-only history with its own id and time.
func needsProgressHistory(ctx context.Context, tx *sqlx.Tx) (bool, error) {
	cols, err := tableColumns(ctx, tx, "progress")
	if err != nil {
		return false, err
	}
	return len(cols) > 0 && !cols["created_at"], nil
}

func applyProgressHistory(ctx context.Context, tx *sqlx.Tx, env legacyEnv) error {
	cols, err := tableColumns(ctx, tx, "progress")
	if err != nil {
		return err
	}
	if !cols["user_id"] {
		return errors.New("progress has no user_id column")
	}
	deckCol, err := deckRefColumn(ctx, tx)
	if err != nil {
		return err
	}

	ddl := `CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    deck_id ` + deckCol + `,
    category TEXT NOT NULL ` + categoryCheck + `,
    created_at INTEGER NOT NULL
)`
	copySQL := `INSERT OR IGNORE INTO %s (user_id, card_id, deck_id, category, created_at)
SELECT p.user_id, p.card_id, p.deck_id, p.category, ?
FROM progress p
JOIN cards c ON c.id = p.card_id
JOIN users u ON u.id = p.user_id
ORDER BY p.rowid`
	return rebuildTable(ctx, tx, "progress", ddl, copySQL, env.now)
}

// (c) Text deck ids become integer ids; the old id is kept as the slug.
func needsDeckSlugs(ctx context.Context, tx *sqlx.Tx) (bool, error) {
	cols, err := tableColumns(ctx, tx, "decks")
	if err != nil {
		return false, err
	}
	return len(cols) > 0 && !cols["slug"], nil
}

func applyDeckSlugs(ctx context.Context, tx *sqlx.Tx, env legacyEnv) error {
	const decksDDL = `CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    filename TEXT
)`
	if err := stageTable(ctx, tx, "decks", decksDDL,
		`INSERT OR IGNORE INTO %s (slug, title, filename) SELECT id, title, filename FROM decks ORDER BY rowid`,
	); err != nil {
		return err
	}
	swaps := []string{"decks"}

	cardCols, err := tableColumns(ctx, tx, "cards")
	if err != nil {
		return err
	}
	if len(cardCols) > 0 {
		var imageDefs, imageCols, imageSelect string
		for _, col := range []string{"image", "question_image", "answer_image"} {
			if cardCols[col] {
				imageDefs += ",\n    " + col + " TEXT"
				imageCols += ", " + col
				imageSelect += ", c." + col
			}
		}
		ddl := `CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id INTEGER NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    question TEXT NOT NULL,
    answer TEXT NOT NULL` + imageDefs + `,
    UNIQUE(deck_id, question, answer)
)`
		copySQL := `INSERT OR IGNORE INTO %s (id, deck_id, question, answer` + imageCols + `)
SELECT c.id, d.id, c.question, c.answer` + imageSelect + `
FROM cards c JOIN decks_new d ON d.slug = c.deck_id`
		if err := stageTable(ctx, tx, "cards", ddl, copySQL); err != nil {
			return err
		}
		swaps = append(swaps, "cards")
	}

	progressCols, err := tableColumns(ctx, tx, "progress")
	if err != nil {
		return err
	}
	if len(progressCols) > 0 {
		if !progressCols["user_id"] || !progressCols["created_at"] {
			return errors.New("progress is not yet a per-user history")
		}
		ddl := `CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    deck_id INTEGER NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    category TEXT NOT NULL ` + categoryCheck + `,
    created_at INTEGER NOT NULL
)`
		copySQL := `INSERT OR IGNORE INTO %s (id, user_id, card_id, deck_id, category, created_at)
SELECT p.id, p.user_id, p.card_id, d.id, p.category, p.created_at
FROM progress p
JOIN decks_new d ON d.slug = p.deck_id
JOIN cards_new c ON c.id = p.card_id`
		if err := stageTable(ctx, tx, "progress", ddl, copySQL); err != nil {
			return err
		}
		swaps = append(swaps, "progress")
	}

	ratingCols, err := tableColumns(ctx, tx, "ratings")
	if err != nil {
		return err
	}
	if len(ratingCols) > 0 {
		if !ratingCols["user_id"] {
			return errors.New("ratings have no user_id column")
		}
		updated, args := columnOr(ratingCols, "r", "updated_at", env.now)
		ddl := `CREATE TABLE %s (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    deck_id INTEGER NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    rating TEXT NOT NULL ` + ratingCheck + `,
    updated_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, card_id)
)`
		copySQL := `INSERT OR IGNORE INTO %s (user_id, card_id, deck_id, rating, updated_at)
SELECT r.user_id, r.card_id, d.id, r.rating, ` + updated + `
FROM ratings r
JOIN decks_new d ON d.slug = r.deck_id
JOIN cards_new c ON c.id = r.card_id`
		if err := stageTable(ctx, tx, "ratings", ddl, copySQL, args...); err != nil {
			return err
		}
		swaps = append(swaps, "ratings")
	}

	for _, table := range swaps {
		if err := swapTable(ctx, tx, table); err != nil {
			return err
		}
	}
	return nil
}

// (d) The rating enumeration is widened to include more_info and ignore.
func needsRatingValues(ctx context.Context, tx *sqlx.Tx) (bool, error) {
	def, err := tableDefinition(ctx, tx, "ratings")
	if err != nil {
		return false, err
	}
	return def != "" && !strings.Contains(def, "more_info"), nil
}

func applyRatingValues(ctx context.Context, tx *sqlx.Tx, env legacyEnv) error {
	cols, err := tableColumns(ctx, tx, "ratings")
	if err != nil {
		return err
	}
	if !cols["user_id"] {
		return errors.New("ratings have no user_id column")
	}
	deckCol, err := deckRefColumn(ctx, tx)
	if err != nil {
		return err
	}
	updated, args := columnOr(cols, "r", "updated_at", env.now)

	ddl := `CREATE TABLE %s (
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    deck_id ` + deckCol + `,
    rating TEXT NOT NULL ` + ratingCheck + `,
    updated_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, card_id)
)`
	copySQL := `INSERT OR IGNORE INTO %s (user_id, card_id, deck_id, rating, updated_at)
SELECT r.user_id, r.card_id, r.deck_id, r.rating, ` + updated + `
FROM ratings r JOIN cards c ON c.id = r.card_id`
	return rebuildTable(ctx, tx, "ratings", ddl, copySQL, args...)
}

// (e) Cards gain separate question and answer images. A single legacy
// image column becomes the question image.
func needsCardImages(ctx context.Context, tx *sqlx.Tx) (bool, error) {
	cols, err := tableColumns(ctx, tx, "cards")
	if err != nil {
		return false, err
	}
	return len(cols) > 0 && (!cols["question_image"] || !cols["answer_image"]), nil
}

func applyCardImages(ctx context.Context, tx *sqlx.Tx, _ legacyEnv) error {
	cols, err := tableColumns(ctx, tx, "cards")
	if err != nil {
		return err
	}
	deckCol, err := deckRefColumn(ctx, tx)
	if err != nil {
		return err
	}

	questionImage := "NULL"
	switch {
	case cols["question_image"]:
		questionImage = "question_image"
	case cols["image"]:
		questionImage = "image"
	}
	answerImage := "NULL"
	if cols["answer_image"] {
		answerImage = "answer_image"
	}

	ddl := `CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id ` + deckCol + `,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    question_image TEXT,
    answer_image TEXT,
    UNIQUE(deck_id, question, answer)
)`
	copySQL := `INSERT OR IGNORE INTO %s (id, deck_id, question, answer, question_image, answer_image)
SELECT id, deck_id, question, answer, ` + questionImage + `, ` + answerImage + ` FROM cards`
	return rebuildTable(ctx, tx, "cards", ddl, copySQL)
}

// rebuildTable replaces table with a new table built by ddl and filled by
// copySQL. Both statements hold a single %s for the replacement's name.
func rebuildTable(ctx context.Context, tx *sqlx.Tx, table, ddl, copySQL string, args ...any) error {
	if err := stageTable(ctx, tx, table, ddl, copySQL, args...); err != nil {
		return err
	}
	return swapTable(ctx, tx, table)
}

func stageTable(ctx context.Context, tx *sqlx.Tx, table, ddl, copySQL string, args ...any) error {
	staged := table + "_new"
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+staged); err != nil {
		return fmt.Errorf("failed to drop stale %s: %w", staged, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(ddl, staged)); err != nil {
		return fmt.Errorf("failed to create %s: %w", staged, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(copySQL, staged), args...); err != nil {
		return fmt.Errorf("failed to copy rows into %s: %w", staged, err)
	}
	return nil
}

func swapTable(ctx context.Context, tx *sqlx.Tx, table string) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE `+table); err != nil {
		return fmt.Errorf("failed to drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE `+table+`_new RENAME TO `+table); err != nil {
		return fmt.Errorf("failed to rename %s_new: %w", table, err)
	}
	return nil
}

// deckRefColumn is the deck_id column definition matching the current
// decks table: an integer foreign key once decks have slugs, text before.
func deckRefColumn(ctx context.Context, tx *sqlx.Tx) (string, error) {
	cols, err := tableColumns(ctx, tx, "decks")
	if err != nil {
		return "", err
	}
	if cols["slug"] {
		return "INTEGER NOT NULL REFERENCES decks(id) ON DELETE CASCADE", nil
	}
	return "TEXT NOT NULL", nil
}

// columnOr selects alias.col when it exists, else a bound fallback value.
func columnOr(cols map[string]bool, alias, col string, fallback any) (string, []any) {
	if cols[col] {
		return alias + "." + col, nil
	}
	return "?", []any{fallback}
}

// tableColumns returns the column names of table, empty when it does not exist.
func tableColumns(ctx context.Context, tx *sqlx.Tx, table string) (map[string]bool, error) {
	var names []string
	if err := tx.SelectContext(ctx, &names, `SELECT name FROM pragma_table_info(?)`, table); err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	cols := make(map[string]bool, len(names))
	for _, n := range names {
		cols[n] = true
	}
	return cols, nil
}

func tableDefinition(ctx context.Context, tx *sqlx.Tx, table string) (string, error) {
	var def sql.NullString
	err := tx.GetContext(ctx, &def, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read definition of %s: %w", table, err)
	}
	return def.String, nil
}
