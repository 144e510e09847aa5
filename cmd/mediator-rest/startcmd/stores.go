/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go-ext/component/storage/mysql"
	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/memstore"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/redisstore"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/mediator/sqlstore"
)

const (
	databaseTypeMemOption     = "mem"
	databaseTypeLevelDBOption = "leveldb"
	databaseTypeMYSQLDBOption = "mysql"
	databaseTypeSQLiteOption  = "sqlite"
	databaseTypeRedisOption   = "redis"
)

// stores holds the mediation store and the storage provider the agent keeps its wallet and
// protocol records in.
type stores struct {
	mediation mediator.Persistence
	provider  storage.Provider
	closers   []func() error
}

func (s *stores) Close() error {
	var firstErr error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

type storeOpener func(ctx context.Context, param *dbParam) (mediator.Persistence, storage.Provider, func() error,
	error)

var supportedStores = map[string]storeOpener{
	databaseTypeMemOption: func(context.Context, *dbParam) (mediator.Persistence, storage.Provider, func() error,
		error) {
		return onProvider(mem.NewProvider())
	},
	databaseTypeLevelDBOption: func(_ context.Context, param *dbParam) (mediator.Persistence, storage.Provider,
		func() error, error) {
		return onProvider(leveldb.NewProvider(param.url))
	},
	databaseTypeMYSQLDBOption: func(_ context.Context, param *dbParam) (mediator.Persistence, storage.Provider,
		func() error, error) {
		prov, err := mysql.NewProvider(param.url, mysql.WithDBPrefix(param.prefix))
		if err != nil {
			return nil, nil, nil, err
		}

		return onProvider(prov)
	},
	databaseTypeSQLiteOption: func(_ context.Context, param *dbParam) (mediator.Persistence, storage.Provider,
		func() error, error) {
		dsn := param.url
		if dsn == "" {
			dsn = sqlstore.MemoryDSN
		}

		s, err := sqlstore.Open(dsn)
		if err != nil {
			return nil, nil, nil, err
		}

		return s, nil, s.Close, nil
	},
	databaseTypeRedisOption: func(ctx context.Context, param *dbParam) (mediator.Persistence, storage.Provider,
		func() error, error) {
		var opts []redisstore.Option
		if param.prefix != "" {
			opts = append(opts, redisstore.WithPrefix(param.prefix))
		}

		s, err := redisstore.Dial(ctx, param.url, opts...)
		if err != nil {
			return nil, nil, nil, err
		}

		return s, nil, s.Close, nil
	},
}

// onProvider keeps the mediation store in prov next to the agent's own records.
func onProvider(prov storage.Provider) (mediator.Persistence, storage.Provider, func() error, error) {
	s, err := memstore.New(prov)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "open mediation store")
	}

	return s, prov, nil, nil
}

func createStores(ctx context.Context, parameters *mediatorParameters) (*stores, error) {
	open, supported := supportedStores[parameters.dbParam.dbType]
	if !supported {
		return nil, fmt.Errorf("database type not set to a valid type." +
			" run start --help to see the available options")
	}

	res := &stores{}

	err := backoff.RetryNotify(
		func() error {
			var (
				closer  func() error
				openErr error
			)

			res.mediation, res.provider, closer, openErr = open(ctx, parameters.dbParam)
			if openErr != nil {
				return openErr
			}

			if closer != nil {
				res.closers = append(res.closers, closer)
			}

			return nil
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), parameters.dbParam.timeout),
		func(retryErr error, t time.Duration) {
			logger.Warnf(
				"failed to connect to the %s database, will sleep for %s before trying again: %s",
				parameters.dbParam.dbType, t, retryErr)
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to the %s database", parameters.dbParam.dbType)
	}

	if res.provider == nil {
		res.provider = keyStoreProvider(parameters.keyStorePath)
	}

	return res, nil
}

func keyStoreProvider(path string) storage.Provider {
	if path == "" {
		logger.Warnf("no %s set: mediator keys and connections are kept in memory and lost on restart",
			keyStorePathFlagName)

		return mem.NewProvider()
	}

	return leveldb.NewProvider(path)
}
