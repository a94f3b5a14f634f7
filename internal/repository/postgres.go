// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/iva2004/alina-bot/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ не найден.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderStale возвращается, когда статус заказа на момент фиксации уже
	// не совпадает с ожидаемым: другой админ успел применить свой переход.
	ErrOrderStale = errors.New("order status changed concurrently")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCartEmpty возвращается при оформлении заказа с пустой корзиной.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrAdminExists возвращается при повторном добавлении администратора.
	ErrAdminExists = errors.New("admin already exists")
)

// OrderUpdate перечисляет поля заказа, выставляемые переходом.
// nil-поля не меняются.
type OrderUpdate struct {
	ItemAmount          *decimal.Decimal
	ShippingWeight      *decimal.Decimal
	ShippingAmount      *decimal.Decimal
	TrackNumber         *string
	DeliveryTrackNumber *string
	ShippingAddress     *string
	StaffNote           *string
	ReceiptFileID       *string
	WeightReceiptFileID *string
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только сериализационные сбои и дедлоки; всё остальное —
		// дело вызывающего кода.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func toKopecks(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromKopecks(k int64) decimal.Decimal {
	return decimal.New(k, -2)
}

// GetOrCreateUser находит пользователя по chat-идентификатору или создаёт его,
// попутно обновляя имя и username.
func (r *PostgresRepository) GetOrCreateUser(ctx context.Context, chatID int64, username, fullName string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (chat_id, username, full_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, full_name = EXCLUDED.full_name
		 RETURNING id, chat_id, username, full_name, is_admin, created_at`,
		chatID, username, fullName,
	)

	var u model.User
	if err := row.Scan(&u.ID, &u.ChatID, &u.Username, &u.FullName, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

// GetUserByID возвращает пользователя по внутреннему идентификатору.
// Заказ ссылается именно на него, а не на chat-идентификатор, чтобы пережить
// смену чата клиентом.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, chat_id, username, full_name, is_admin, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	if err := row.Scan(&u.ID, &u.ChatID, &u.Username, &u.FullName, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

const orderColumns = `id, user_id, title, source_url, item_amount, item_currency,
	shipping_weight, shipping_amount, track_number, delivery_track_number,
	shipping_address, staff_note, receipt_file_id, weight_receipt_file_id, status, created_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o         model.Order
		amountK   int64
		weight    *float64
		shippingK *int64
		rawStatus string
	)

	err := row.Scan(&o.ID, &o.UserID, &o.Title, &o.SourceURL, &amountK, &o.ItemCurrency,
		&weight, &shippingK, &o.TrackNumber, &o.DeliveryTrackNumber,
		&o.ShippingAddress, &o.StaffNote, &o.ReceiptFileID, &o.WeightReceiptFileID, &rawStatus, &o.CreatedAt)
	if err != nil {
		return model.Order{}, err
	}

	o.ItemAmount = fromKopecks(amountK)
	if weight != nil {
		w := decimal.NewFromFloat(*weight)
		o.ShippingWeight = &w
	}
	if shippingK != nil {
		s := fromKopecks(*shippingK)
		o.ShippingAmount = &s
	}
	// Статус нормализуется при каждом чтении: в базе встречаются записи
	// с разным регистром и подчёркиваниями.
	o.Status = model.OrderStatus(model.NormalizeStatus(rawStatus))

	return o, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// GetOrderByTrack ищет заказ по международному треку или ТТН последней мили.
func (r *PostgresRepository) GetOrderByTrack(ctx context.Context, number string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE track_number = $1 OR delivery_track_number = $1
		 ORDER BY id DESC LIMIT 1`, number)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by track: %w", err)
	}
	return &o, nil
}

// CommitTransition атомарно фиксирует переход заказа: статус меняется только
// если текущий статус всё ещё равен ожидаемому. Сравнение нормализует регистр
// и подчёркивания. Нулевое число затронутых строк означает либо исчезнувший
// заказ, либо конкурентный переход — двойное выставление счёта и двойной трек
// отсекаются именно здесь.
func (r *PostgresRepository) CommitTransition(ctx context.Context, id int64, from, to model.OrderStatus, upd OrderUpdate) error {
	set := []string{"status = $1"}
	args := []any{string(to)}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.ItemAmount != nil {
		add("item_amount", toKopecks(*upd.ItemAmount))
	}
	if upd.ShippingWeight != nil {
		w, _ := upd.ShippingWeight.Float64()
		add("shipping_weight", w)
	}
	if upd.ShippingAmount != nil {
		add("shipping_amount", toKopecks(*upd.ShippingAmount))
	}
	if upd.TrackNumber != nil {
		add("track_number", *upd.TrackNumber)
	}
	if upd.DeliveryTrackNumber != nil {
		add("delivery_track_number", *upd.DeliveryTrackNumber)
	}
	if upd.ShippingAddress != nil {
		add("shipping_address", *upd.ShippingAddress)
	}
	if upd.StaffNote != nil {
		add("staff_note", *upd.StaffNote)
	}
	if upd.ReceiptFileID != nil {
		add("receipt_file_id", *upd.ReceiptFileID)
	}
	if upd.WeightReceiptFileID != nil {
		add("weight_receipt_file_id", *upd.WeightReceiptFileID)
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, model.NormalizeStatus(string(from)))
	fromArg := len(args)

	query := fmt.Sprintf(
		`UPDATE orders SET %s WHERE id = $%d AND UPPER(REPLACE(status, '_', ' ')) = $%d`,
		strings.Join(set, ", "), idArg, fromArg,
	)

	return r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("commit transition: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrOrderStale
	})
}

// ListOrdersByStatus возвращает заказы в указанном статусе, опционально
// ограниченные одним пользователем.
func (r *PostgresRepository) ListOrdersByStatus(ctx context.Context, status model.OrderStatus, userID *int64, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		 WHERE UPPER(REPLACE(status, '_', ' ')) = $1`
	args := []any{model.NormalizeStatus(string(status))}

	if userID != nil {
		args = append(args, *userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

// CountByStatuses считает заказы в любом из перечисленных статусов,
// опционально только для одного пользователя. Счётчики пересчитываются
// при каждом показе меню — кэша нет намеренно.
func (r *PostgresRepository) CountByStatuses(ctx context.Context, userID *int64, statuses ...model.OrderStatus) (int64, error) {
	normalized := make([]string, 0, len(statuses))
	for _, s := range statuses {
		normalized = append(normalized, model.NormalizeStatus(string(s)))
	}

	query := `SELECT COUNT(id) FROM orders WHERE UPPER(REPLACE(status, '_', ' ')) = ANY($1)`
	args := []any{normalized}

	if userID != nil {
		args = append(args, *userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// RevenueStats возвращает число завершённых заказов и сумму их счетов за товар.
func (r *PostgresRepository) RevenueStats(ctx context.Context) (*model.RevenueStats, error) {
	var (
		count    int64
		revenueK int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(id), COALESCE(SUM(item_amount), 0)
		 FROM orders
		 WHERE UPPER(REPLACE(status, '_', ' ')) = $1`,
		string(model.StatusCompleted),
	).Scan(&count, &revenueK)
	if err != nil {
		return nil, fmt.Errorf("revenue stats: %w", err)
	}

	return &model.RevenueStats{
		CompletedOrders: count,
		Revenue:         fromKopecks(revenueK),
	}, nil
}

// AddCartItem сохраняет позицию корзины клиента.
func (r *PostgresRepository) AddCartItem(ctx context.Context, item model.CartItem) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO cart_items (chat_id, title, amount, details, source_url)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.ChatID, item.Title, toKopecks(item.Amount), item.Details, item.SourceURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert cart item: %w", err)
	}
	return id, nil
}

// GetCartItems возвращает корзину клиента.
func (r *PostgresRepository) GetCartItems(ctx context.Context, chatID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, chat_id, title, amount, details, source_url
		 FROM cart_items WHERE chat_id = $1 ORDER BY id`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var (
			it      model.CartItem
			amountK int64
		)
		if err := rows.Scan(&it.ID, &it.ChatID, &it.Title, &amountK, &it.Details, &it.SourceURL); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		it.Amount = fromKopecks(amountK)
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// ClearCart удаляет все позиции корзины клиента.
func (r *PostgresRepository) ClearCart(ctx context.Context, chatID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Checkout конвертирует корзину клиента в заказы со статусом NEW в одной
// транзакции: пользователь создаётся на лету, позиции переносятся 1:1,
// корзина очищается.
func (r *PostgresRepository) Checkout(ctx context.Context, chatID int64, username, fullName string) ([]model.Order, *model.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT title, amount, details, source_url FROM cart_items WHERE chat_id = $1 ORDER BY id`,
		chatID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select cart items: %w", err)
	}

	type cartRow struct {
		title   string
		amountK int64
		details string
		url     string
	}
	var cart []cartRow
	for rows.Next() {
		var c cartRow
		if err := rows.Scan(&c.title, &c.amountK, &c.details, &c.url); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart = append(cart, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}

	if len(cart) == 0 {
		return nil, nil, ErrCartEmpty
	}

	var u model.User
	err = tx.QueryRow(ctx,
		`INSERT INTO users (chat_id, username, full_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, full_name = EXCLUDED.full_name
		 RETURNING id, chat_id, username, full_name, is_admin, created_at`,
		chatID, username, fullName,
	).Scan(&u.ID, &u.ChatID, &u.Username, &u.FullName, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert user: %w", err)
	}

	orders := make([]model.Order, 0, len(cart))
	for _, c := range cart {
		var (
			id        int64
			createdAt time.Time
		)
		err = tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, title, source_url, item_amount, status)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
			u.ID, c.title, c.url, c.amountK, string(model.StatusNew),
		).Scan(&id, &createdAt)
		if err != nil {
			return nil, nil, fmt.Errorf("insert order: %w", err)
		}

		orders = append(orders, model.Order{
			ID:           id,
			UserID:       u.ID,
			Title:        c.title,
			SourceURL:    c.url,
			ItemAmount:   fromKopecks(c.amountK),
			ItemCurrency: "UAH",
			Status:       model.StatusNew,
			CreatedAt:    createdAt,
		})
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE chat_id = $1`, chatID); err != nil {
		return nil, nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	return orders, &u, nil
}

// GetRate возвращает числовое значение настройки (курс, комиссию).
// Неизвестный ключ и пустое числовое поле дают значение по умолчанию:
// таблица настроек двухколоночная, строковые записи здесь игнорируются.
func (r *PostgresRepository) GetRate(ctx context.Context, key string, def float64) (float64, error) {
	var val *float64
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&val)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return def, nil
		}
		return def, fmt.Errorf("get setting: %w", err)
	}
	if val == nil {
		return def, nil
	}
	return *val, nil
}

// SetRate записывает числовое значение настройки.
func (r *PostgresRepository) SetRate(ctx context.Context, key string, value float64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// IsAdmin проверяет, числится ли chat-идентификатор в таблице администраторов.
func (r *PostgresRepository) IsAdmin(ctx context.Context, chatID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE chat_id = $1)`, chatID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return exists, nil
}

// AdminChatIDs возвращает chat-идентификаторы всех администраторов для рассылки.
func (r *PostgresRepository) AdminChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT chat_id FROM admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// AddAdmin добавляет администратора.
func (r *PostgresRepository) AddAdmin(ctx context.Context, chatID int64, name string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admins (chat_id, name) VALUES ($1, $2)`,
		chatID, name,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %d", ErrAdminExists, chatID)
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

// RemoveAdmin удаляет администратора по chat-идентификатору.
func (r *PostgresRepository) RemoveAdmin(ctx context.Context, chatID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM admins WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	return nil
}
