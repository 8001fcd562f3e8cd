package store

import (
	"context"
	"fmt"
	"time"

	"invest-referral/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store представляет интерфейс для работы с базой данных
type Store interface {
	Edge() EdgeRepository
	Config() ConfigRepository
	Earning() EarningRepository
	Milestone() MilestoneRepository
	Stats() StatsRepository
	Wallet() WalletRepository
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db        *pgxpool.Pool
	logger    *zap.Logger
	edge      EdgeRepository
	cfg       ConfigRepository
	earning   EarningRepository
	milestone MilestoneRepository
	stats     StatsRepository
	wallet    WalletRepository
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Создание пула подключений
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	// Создание пула
	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Проверка подключения
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	s := &store{
		db:     db,
		logger: logger,
	}

	// Инициализация репозиториев
	s.edge = NewEdgeRepository(db, logger)
	s.cfg = NewConfigRepository(db, logger)
	s.earning = NewEarningRepository(db, logger)
	s.milestone = NewMilestoneRepository(db, logger)
	s.stats = NewStatsRepository(db, logger)
	s.wallet = NewWalletRepository(db, logger)

	return s, nil
}

// Edge возвращает репозиторий ребер реферального графа
func (s *store) Edge() EdgeRepository {
	return s.edge
}

// Config возвращает репозиторий конфигураций реферальной программы
func (s *store) Config() ConfigRepository {
	return s.cfg
}

// Earning возвращает репозиторий начислений
func (s *store) Earning() EarningRepository {
	return s.earning
}

// Milestone возвращает репозиторий бонусов за достижения
func (s *store) Milestone() MilestoneRepository {
	return s.milestone
}

// Stats возвращает репозиторий статистики рефералов
func (s *store) Stats() StatsRepository {
	return s.stats
}

// Wallet возвращает репозиторий кошельков
func (s *store) Wallet() WalletRepository {
	return s.wallet
}

// Begin открывает новую транзакцию
func (s *store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.db.Begin(ctx)
}

// Ping проверяет доступность базы данных
func (s *store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}
