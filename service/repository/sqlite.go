package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/bbars/chunkgate/service/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	SqliteMigrationsDir = "sqlite3"
)

type sqlite struct {
	Db         *sqlx.DB
	migrations fs.ReadDirFS
	now        func() time.Time
}

func NewSqlite(db *sql.DB, migrations fs.ReadDirFS) *sqlite {
	return &sqlite{
		Db:         sqlx.NewDb(db, "sqlite3"),
		migrations: migrations,
		now:        time.Now,
	}
}

var _ Repository = &sqlite{}

func (sq *sqlite) Migrate() (err error) {
	dirEntries, err := sq.migrations.ReadDir(SqliteMigrationsDir)
	if err != nil {
		err = errors.Wrap(err, "list migrations")
		return
	}

	// apply initial migration
	_ = sq.applyMigration(SqliteMigrationsDir+"/"+InitialMigrationName, true)

	// apply pending migrations
	for _, dirEntry := range dirEntries {
		migrationName := dirEntry.Name()
		if migrationName == InitialMigrationName {
			continue
		}

		err = sq.applyMigration(SqliteMigrationsDir+"/"+migrationName, false)
		if err != nil {
			err = errors.Wrapf(err, "apply migration %+q", migrationName)
			break
		}
	}

	return
}

func (sq *sqlite) applyMigration(filePath string, skipPreCheck bool) (err error) {
	migrationName := filepath.Base(filePath)

	if !skipPreCheck {
		var applied bool
		err = sq.Db.Get(
			&applied,
			fmt.Sprintf(
				`
				SELECT`+` 1 FROM %s
				WHERE name = $1
				AND error = ''
				LIMIT 1
				`,
				MigrationTableName,
			),
			migrationName,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = nil
			} else {
				err = errors.Wrapf(err, "pre-check migration %+q", filePath)
				return
			}
		}
		if applied {
			return
		}
	}

	tx, err := sq.Db.Begin()
	if err != nil {
		err = errors.Wrapf(err, "begin transaction for migration %+q", filePath)
		return
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
		}

		errorMessage := ""
		if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				err = errors.Wrapf(err, "rollback migration %+q: %s", filePath, rollbackErr.Error())
			}
			errorMessage = err.Error()
		}

		_, errFix := sq.Db.Exec(
			fmt.Sprintf(
				`
				INSERT`+` INTO %s
				(name, btime, error)
				VALUES
				($1, $2, $3)
				`,
				MigrationTableName,
			),
			migrationName,
			time.Now().UTC(),
			errorMessage,
		)
		if errFix != nil && err == nil {
			err = errors.Wrapf(errFix, "fix migration %+q", filePath)
			return
		}
	}()

	f, err := sq.migrations.Open(filePath)
	if err != nil {
		err = errors.Wrapf(err, "open migration %+q", filePath)
		return
	}

	query, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		err = errors.Wrapf(err, "read migration %+q", filePath)
		return
	}

	_, err = tx.Exec(string(query))
	if err != nil {
		err = errors.Wrapf(err, "execute migration %+q", filePath)
		return
	}
	return
}

func (sq *sqlite) Site(ctx context.Context, name string) (site Site, err error) {
	row := &types.Site{}
	err = sq.Db.GetContext(
		ctx,
		row,
		`
		SELECT`+` name, methods, btime FROM site
		WHERE name = $1
		`,
		name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		err = errors.Wrapf(types.ErrNotFound, "site %+q", name)
		return
	}
	if err != nil {
		err = errors.Wrapf(err, "select site %+q", name)
		return
	}
	site = &sqliteSite{
		sq:   sq,
		site: row,
	}
	return
}

func (sq *sqlite) PutSite(ctx context.Context, site *types.Site) (err error) {
	if site.Btime.IsZero() {
		site.Btime = sq.now().UTC()
	}
	_, err = sq.Db.NamedExecContext(
		ctx,
		`
		INSERT`+` INTO site
		(name, methods, btime)
		VALUES
		(:name, :methods, :btime)
		ON CONFLICT (name) DO UPDATE SET
		methods = excluded.methods
		`,
		site,
	)
	if err != nil {
		err = errors.Wrapf(err, "upsert site %+q", site.Name)
		return
	}
	return
}

func (sq *sqlite) DefineResource(ctx context.Context, res *types.Resource) (err error) {
	tx, err := sq.Db.BeginTxx(ctx, nil)
	if err != nil {
		err = errors.Wrap(err, "begin transaction")
		return
	}
	defer func() {
		err = finishTx(tx, err)
	}()

	err = checkSite(ctx, tx, res.Site)
	if err != nil {
		return
	}

	_, err = tx.NamedExecContext(
		ctx,
		fmt.Sprintf(
			`
			INSERT`+` INTO %s
			(site, path, mime_type, charset, encoding, language,
			 cache_immutable, cache_preset, cache_custom,
			 cors_methods, cors_origins, cors_preset, cors_custom,
			 redirect_code, redirect_location)
			VALUES
			(:site, :path, :mime_type, :charset, :encoding, :language,
			 :cache_immutable, :cache_preset, :cache_custom,
			 :cors_methods, :cors_origins, :cors_preset, :cors_custom,
			 :redirect_code, :redirect_location)
			ON CONFLICT (site, path) DO UPDATE SET
			  mime_type = excluded.mime_type
			, charset = excluded.charset
			, encoding = excluded.encoding
			, language = excluded.language
			, cache_immutable = excluded.cache_immutable
			, cache_preset = excluded.cache_preset
			, cache_custom = excluded.cache_custom
			, cors_methods = excluded.cors_methods
			, cors_origins = excluded.cors_origins
			, cors_preset = excluded.cors_preset
			, cors_custom = excluded.cors_custom
			, redirect_code = excluded.redirect_code
			, redirect_location = excluded.redirect_location
			`,
			res.TableName(),
		),
		res,
	)
	if err != nil {
		err = errors.Wrapf(err, "define resource %s%s", res.Site, res.Path)
		return
	}
	return
}

func (sq *sqlite) WriteContent(ctx context.Context, site string, path string, props *types.ResourceProperties, chunks []types.ChunkRef, appendChunks bool, maxSize int64) (res *types.Resource, err error) {
	tx, err := sq.Db.BeginTxx(ctx, nil)
	if err != nil {
		err = errors.Wrap(err, "begin transaction")
		return
	}
	defer func() {
		err = finishTx(tx, err)
		if err != nil {
			res = nil
		}
	}()

	err = checkSite(ctx, tx, site)
	if err != nil {
		return
	}

	res, err = getResource(ctx, tx, site, path)
	if errors.Is(err, types.ErrNotFound) {
		res = &types.Resource{
			Site: site,
			Path: path,
		}
		_, err = tx.NamedExecContext(
			ctx,
			`INSERT INTO resource (site, path) VALUES (:site, :path)`,
			res,
		)
		if err != nil {
			err = errors.Wrapf(err, "insert resource %s%s", site, path)
			return
		}
	} else if err != nil {
		return
	}

	var firstIdx int64
	if appendChunks {
		err = tx.GetContext(
			ctx,
			&firstIdx,
			`SELECT COUNT(*) FROM resource_chunk WHERE site = $1 AND path = $2`,
			site,
			path,
		)
		if err != nil {
			err = errors.Wrap(err, "count chunks")
			return
		}
	} else {
		_, err = tx.ExecContext(
			ctx,
			`DELETE FROM resource_chunk WHERE site = $1 AND path = $2`,
			site,
			path,
		)
		if err != nil {
			err = errors.Wrap(err, "reset chunks")
			return
		}
		res.Size = 0
	}

	for i, chunk := range chunks {
		_, err = tx.ExecContext(
			ctx,
			`
			INSERT`+` INTO resource_chunk
			(site, path, idx, address, size)
			VALUES
			($1, $2, $3, $4, $5)
			`,
			site,
			path,
			firstIdx+int64(i),
			chunk.Address,
			chunk.Size,
		)
		if err != nil {
			err = errors.Wrapf(err, "insert chunk %d", firstIdx+int64(i))
			return
		}
		res.Size += chunk.Size
	}
	if maxSize > 0 && res.Size > maxSize {
		err = errors.Wrapf(types.ErrTooLarge, "%s%s would grow to %d bytes, limit is %d", site, path, res.Size, maxSize)
		return
	}

	if props != nil {
		res.MimeType = props.MimeType
		res.Charset = props.Charset
		res.Encoding = props.Encoding
		res.Language = props.Language
	}
	res.Version++
	res.LastModified = sq.now().Unix()

	_, err = tx.NamedExecContext(
		ctx,
		`
		UPDATE`+` resource
		SET
		  mime_type = :mime_type
		, charset = :charset
		, encoding = :encoding
		, language = :language
		, size = :size
		, version = :version
		, last_modified = :last_modified
		WHERE site = :site AND path = :path
		`,
		res,
	)
	if err != nil {
		err = errors.Wrapf(err, "update resource %s%s", site, path)
		return
	}
	return
}

func checkSite(ctx context.Context, q sqlx.QueryerContext, site string) (err error) {
	var exists bool
	err = sqlx.GetContext(ctx, q, &exists, `SELECT 1 FROM site WHERE name = $1`, site)
	if errors.Is(err, sql.ErrNoRows) {
		err = errors.Wrapf(types.ErrNotFound, "site %+q", site)
		return
	}
	if err != nil {
		err = errors.Wrapf(err, "select site %+q", site)
		return
	}
	return
}

func getResource(ctx context.Context, q sqlx.QueryerContext, site string, path string) (res *types.Resource, err error) {
	res = &types.Resource{}
	err = sqlx.GetContext(
		ctx,
		q,
		res,
		fmt.Sprintf(
			`
			SELECT`+` * FROM %s
			WHERE site = $1 AND path = $2
			`,
			res.TableName(),
		),
		site,
		path,
	)
	if errors.Is(err, sql.ErrNoRows) {
		res = nil
		err = errors.Wrapf(types.ErrNotFound, "resource %s%s", site, path)
		return
	}
	if err != nil {
		res = nil
		err = errors.Wrapf(err, "select resource %s%s", site, path)
		return
	}
	return
}

func getChunkAddresses(ctx context.Context, q sqlx.QueryerContext, site string, path string) (addresses []string, err error) {
	err = sqlx.SelectContext(
		ctx,
		q,
		&addresses,
		`
		SELECT`+` address FROM resource_chunk
		WHERE site = $1 AND path = $2
		ORDER BY idx
		`,
		site,
		path,
	)
	if err != nil {
		err = errors.Wrapf(err, "select chunks of %s%s", site, path)
		return
	}
	return
}

func finishTx(tx *sqlx.Tx, err error) error {
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			return errors.Wrapf(err, "rollback: %s", rollbackErr.Error())
		}
		return err
	}
	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
