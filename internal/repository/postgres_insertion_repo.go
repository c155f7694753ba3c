package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/furuhon/internal/model"
)

const insertionColumns = `id, seller_id, title, authors, year, publisher, isbn,
		        price, currency, condition, picture_sources, saved_by_current_user, created_at`

// PostgresInsertionRepo はPostgreSQLを使用したローカルのレコードストア。
type PostgresInsertionRepo struct {
	db *sql.DB
}

// NewPostgresInsertionRepo はPostgresInsertionRepoを生成する。
func NewPostgresInsertionRepo(db *sql.DB) *PostgresInsertionRepo {
	return &PostgresInsertionRepo{db: db}
}

// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
func (r *PostgresInsertionRepo) FindByID(ctx context.Context, id string) (*model.Insertion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+insertionColumns+`
		 FROM insertions WHERE id = $1`,
		id,
	)

	ins, err := scanInsertion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("出品の取得に失敗しました: %w", err)
	}
	return &ins, nil
}

// ID は照合順序に依存せずバイト順で比較する。model.CompareNewestFirst と同じ並びになる。
const (
	orderNewestFirst = `created_at DESC, id COLLATE "C" ASC`
	orderOldestFirst = `created_at ASC, id COLLATE "C" DESC`
)

// FindAll はフィルタに一致する出品を createdAt 降順（同時刻はID昇順）で返す。
func (r *PostgresInsertionRepo) FindAll(ctx context.Context, filter Filter) ([]model.Insertion, error) {
	q := newFilterQuery(filter)
	return r.list(ctx, q.build(orderNewestFirst, filter.Limit), q.args)
}

// FindAllAfter は createdAt が t 以降の出品を昇順（同時刻はID降順）で返す。
// filter.CursorID を指定すると、新しい順でカーソルより厳密に前に並ぶ出品だけを返す。
func (r *PostgresInsertionRepo) FindAllAfter(ctx context.Context, t time.Time, filter Filter) ([]model.Insertion, error) {
	query, args := afterQuery(t, filter)
	return r.list(ctx, query, args)
}

// FindAllBefore は createdAt が t 以前の出品を降順（同時刻はID昇順）で返す。
// filter.CursorID を指定すると、新しい順でカーソルより厳密に後に並ぶ出品だけを返す。
func (r *PostgresInsertionRepo) FindAllBefore(ctx context.Context, t time.Time, filter Filter) ([]model.Insertion, error) {
	query, args := beforeQuery(t, filter)
	return r.list(ctx, query, args)
}

func afterQuery(t time.Time, filter Filter) (string, []any) {
	q := newFilterQuery(filter)
	q.keyset(">", "<", t, filter.CursorID)
	return q.build(orderOldestFirst, filter.Limit), q.args
}

func beforeQuery(t time.Time, filter Filter) (string, []any) {
	q := newFilterQuery(filter)
	q.keyset("<", ">", t, filter.CursorID)
	return q.build(orderNewestFirst, filter.Limit), q.args
}

// Upsert は出品を挿入または上書きする。
func (r *PostgresInsertionRepo) Upsert(ctx context.Context, ins model.Insertion) error {
	if err := upsertInsertion(ctx, r.db, ins); err != nil {
		return fmt.Errorf("出品の保存に失敗しました: %w", err)
	}
	return nil
}

// UpsertAll は複数の出品を1トランザクションで挿入または上書きする。
func (r *PostgresInsertionRepo) UpsertAll(ctx context.Context, insertions []model.Insertion) error {
	if len(insertions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, ins := range insertions {
		if err := upsertInsertion(ctx, tx, ins); err != nil {
			return fmt.Errorf("出品の保存に失敗しました (id=%s): %w", ins.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// LatestCreatedAt は保存済みの最新の createdAt を返す。
func (r *PostgresInsertionRepo) LatestCreatedAt(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT max(created_at) FROM insertions`).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("最新の出品日時の取得に失敗しました: %w", err)
	}
	return latest.Time, latest.Valid, nil
}

// CurrentUserID はローカルに保存されたログインユーザーのIDを返す。
func (r *PostgresInsertionRepo) CurrentUserID(ctx context.Context) (string, error) {
	return currentUserID(ctx, r.db)
}

func (r *PostgresInsertionRepo) list(ctx context.Context, query string, args []any) ([]model.Insertion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("出品一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.Insertion
	for rows.Next() {
		ins, err := scanInsertion(rows)
		if err != nil {
			return nil, fmt.Errorf("出品のスキャンに失敗しました: %w", err)
		}
		items = append(items, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("出品一覧の取得に失敗しました: %w", err)
	}
	return items, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertInsertion(ctx context.Context, db execer, ins model.Insertion) error {
	authors := ins.Book.Authors
	if authors == nil {
		authors = []string{}
	}
	pictures := ins.PictureSources
	if pictures == nil {
		pictures = []string{}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO insertions (`+insertionColumns+`, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		 ON CONFLICT (id) DO UPDATE SET
		     seller_id = EXCLUDED.seller_id,
		     title = EXCLUDED.title,
		     authors = EXCLUDED.authors,
		     year = EXCLUDED.year,
		     publisher = EXCLUDED.publisher,
		     isbn = EXCLUDED.isbn,
		     price = EXCLUDED.price,
		     currency = EXCLUDED.currency,
		     condition = EXCLUDED.condition,
		     picture_sources = EXCLUDED.picture_sources,
		     saved_by_current_user = EXCLUDED.saved_by_current_user,
		     created_at = EXCLUDED.created_at,
		     synced_at = now()`,
		ins.ID, ins.SellerID, ins.Book.Title, pq.Array(authors), ins.Book.Year,
		ins.Book.Publisher, ins.Book.ISBN, ins.Price, ins.Currency, string(ins.Condition),
		pq.Array(pictures), ins.SavedByCurrentUser, ins.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsertion(row rowScanner) (model.Insertion, error) {
	var ins model.Insertion
	var condition string
	var authors, pictures pq.StringArray

	err := row.Scan(
		&ins.ID, &ins.SellerID, &ins.Book.Title, &authors, &ins.Book.Year,
		&ins.Book.Publisher, &ins.Book.ISBN, &ins.Price, &ins.Currency, &condition,
		&pictures, &ins.SavedByCurrentUser, &ins.CreatedAt,
	)
	if err != nil {
		return model.Insertion{}, err
	}

	ins.Condition = model.Condition(condition)
	if len(authors) > 0 {
		ins.Book.Authors = []string(authors)
	}
	if len(pictures) > 0 {
		ins.PictureSources = []string(pictures)
	}
	return ins, nil
}

// filterQuery はFilterからWHERE句とプレースホルダ引数を組み立てる。
type filterQuery struct {
	conds []string
	args  []any
}

func newFilterQuery(f Filter) *filterQuery {
	q := &filterQuery{}
	if f.SavedOnly {
		q.where("saved_by_current_user = true")
	}
	if f.SellerID != "" {
		q.where("seller_id = " + q.arg(f.SellerID))
	}
	if f.ExcludeSellerID != "" {
		q.where("seller_id <> " + q.arg(f.ExcludeSellerID))
	}
	if f.Text != "" {
		p := q.arg("%" + escapeLike(f.Text) + "%")
		q.where(fmt.Sprintf(
			"(lower(title) LIKE %[1]s OR lower(publisher) LIKE %[1]s OR lower(isbn) LIKE %[1]s"+
				" OR EXISTS (SELECT 1 FROM unnest(authors) AS a WHERE lower(a) LIKE %[1]s))", p))
	}
	return q
}

func (q *filterQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *filterQuery) where(cond string) {
	q.conds = append(q.conds, cond)
}

// keyset は日時の境界条件を追加する。cursorID が空なら境界時刻を含み、
// 指定時は (created_at, id) の組でカーソルを厳密に越えるものだけに絞る。
func (q *filterQuery) keyset(timeOp, idOp string, t time.Time, cursorID string) {
	ts := q.arg(t)
	if cursorID == "" {
		q.where(fmt.Sprintf("created_at %s= %s", timeOp, ts))
		return
	}
	q.where(fmt.Sprintf(`(created_at %s %s OR (created_at = %s AND id COLLATE "C" %s %s))`,
		timeOp, ts, ts, idOp, q.arg(cursorID)))
}

func (q *filterQuery) build(orderBy string, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT " + insertionColumns + " FROM insertions")
	if len(q.conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(q.conds, " AND "))
	}
	b.WriteString(" ORDER BY " + orderBy)
	if limit > 0 {
		b.WriteString(" LIMIT " + q.arg(limit))
	}
	return b.String()
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// compile-time interface check
var (
	_ InsertionStore = (*PostgresInsertionRepo)(nil)
	_ SyncStore      = (*PostgresInsertionRepo)(nil)
)
