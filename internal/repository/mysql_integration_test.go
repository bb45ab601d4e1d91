//go:build integration

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

var (
	mysqlPool     *dockertest.Pool
	mysqlResource *dockertest.Resource
	mysqlDB       *sql.DB
)

func TestMain(m *testing.M) {
	var code int
	defer func() {
		if mysqlDB != nil {
			_ = mysqlDB.Close()
		}
		if mysqlResource != nil {
			if err := mysqlPool.Purge(mysqlResource); err != nil {
				log.Printf("could not purge mysql: %s", err)
			}
		}
		os.Exit(code)
	}()

	var err error
	mysqlPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not connect to docker: %s", err)
	}
	mysqlPool.MaxWait = 2 * time.Minute

	mysqlResource, err = mysqlPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=secret",
			"MYSQL_DATABASE=events_test",
		},
	}, func(conf *docker.HostConfig) {
		conf.AutoRemove = true
		conf.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("could not start mysql: %s", err)
	}

	port := mysqlResource.GetPort("3306/tcp")
	if err := mysqlPool.Retry(func() error {
		var err error
		mysqlDB, err = database.OpenMySQL("root", "secret", "localhost", port, "events_test")
		return err
	}); err != nil {
		log.Fatalf("could not connect to mysql: %s", err)
	}
	if err := database.MigrateUp(mysqlDB, database.MySQL); err != nil {
		log.Fatalf("migrate: %s", err)
	}

	code = m.Run()
}

func seedMySQLEvent(t *testing.T, capacity int) uint64 {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	res, err := mysqlDB.Exec(`INSERT INTO events (organiser, title, description, location, state, capacity, form_fields, created_at, updated_at)
		VALUES ('compsoc', ?, '', '', 'published', ?, '[]', ?, ?)`, fmt.Sprintf("integration %d", now.UnixNano()), capacity, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// TestMySQLRowLockSerialisesAccepts drives the lock-count-write sequence the
// engine uses from many goroutines and checks capacity is never exceeded.
func TestMySQLRowLockSerialisesAccepts(t *testing.T) {
	const capacity, workers = 3, 12
	eventID := seedMySQLEvent(t, capacity)
	events := NewEventRepo(mysqlDB, database.MySQL)
	regs := NewRegistrationRepo(mysqlDB, database.MySQL)
	users := NewUserRepo(mysqlDB, database.MySQL)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := mysqlDB.BeginTx(ctx, nil)
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = tx.Rollback() }()

			ev, err := events.LockForUpdateTx(ctx, tx, eventID)
			if !assert.NoError(t, err) {
				return
			}
			userID := fmt.Sprintf("it-%d-%d", eventID, i)
			if !assert.NoError(t, users.UpsertTx(ctx, tx, &model.User{ID: userID, Role: model.RoleMember})) {
				return
			}
			n, err := events.CountActiveTx(ctx, tx, eventID)
			if !assert.NoError(t, err) {
				return
			}
			status := model.StatusWaitlist
			if n < *ev.Capacity {
				status = model.StatusAccepted
			}
			if !assert.NoError(t, regs.InsertTx(ctx, tx, &model.Registration{UserID: userID, EventID: eventID, Status: status})) {
				return
			}
			if assert.NoError(t, tx.Commit()) && status == model.StatusAccepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, accepted)
	n, err := events.CountActive(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, capacity, n)
}

func TestMySQLDuplicateKey(t *testing.T) {
	eventID := seedMySQLEvent(t, 10)
	regs := NewRegistrationRepo(mysqlDB, database.MySQL)
	users := NewUserRepo(mysqlDB, database.MySQL)
	ctx := context.Background()

	tx, err := mysqlDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, users.UpsertTx(ctx, tx, &model.User{ID: "dup-user", Role: model.RoleMember}))
	require.NoError(t, regs.InsertTx(ctx, tx, &model.Registration{UserID: "dup-user", EventID: eventID, Status: model.StatusPending}))
	err = regs.InsertTx(ctx, tx, &model.Registration{UserID: "dup-user", EventID: eventID, Status: model.StatusPending})
	require.ErrorIs(t, err, ErrDuplicate)
}
