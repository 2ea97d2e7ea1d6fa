package managerconfig

import (
	"context"
	"fmt"
	"net/url"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dogmatiq/batchlog/persistence/batchjournal"
	"github.com/dogmatiq/batchlog/persistence/driver/aws/dynamodb"
	"github.com/dogmatiq/batchlog/persistence/driver/memory"
	"github.com/dogmatiq/batchlog/persistence/kv"
	"github.com/dogmatiq/ferrite"
)

var (
	// journalStoreDSN is the DSN describing which journal store to use.
	journalStoreDSN = ferrite.
			URL("BATCHLOG_JOURNAL_DSN", "the DSN of the batch journal store").
			Optional(ferrite.WithRegistry(FerriteRegistry))

	// keyValueStoreDSN is the DSN describing which key/value store holds
	// truncation records.
	keyValueStoreDSN = ferrite.
				URL("BATCHLOG_KV_DSN", "the DSN of the key/value store that holds truncation records").
				Optional(ferrite.WithRegistry(FerriteRegistry))
)

func (c *Config) finalizePersistence() {
	if c.UseEnv {
		if c.Journals == nil {
			if dsn, ok := journalStoreDSN.Value(); ok {
				c.Journals = journalStoreFromDSN(dsn)
			}
		}

		if c.Keyspaces == nil {
			if dsn, ok := keyValueStoreDSN.Value(); ok {
				c.Keyspaces = keyValueStoreFromDSN(dsn)
			}
		}
	}

	if c.Journals == nil {
		panic("no batch journal store is configured, set BATCHLOG_JOURNAL_DSN or provide the WithJournalStore() option")
	}

	if c.JournalName == "" {
		c.JournalName = DefaultJournalName
	}

	// An empty key/value store is equivalent to "no table has ever been
	// truncated".
	if c.Keyspaces == nil {
		c.Keyspaces = &memory.KeyValueStore{}
	}

	if c.TruncationKeyspace == "" {
		c.TruncationKeyspace = DefaultTruncationKeyspace
	}
}

// journalStoreFromDSN returns the journal store described by the given DSN.
//
// Supported schemes are "memory:" and "dynamodb://<table>".
func journalStoreFromDSN(dsn *url.URL) batchjournal.Store {
	switch dsn.Scheme {
	case "memory":
		return &memory.JournalStore{}
	case "dynamodb":
		return &dynamodb.JournalStore{
			Client: dynamoDBClientFromDSN(dsn),
			Table:  dsn.Host,
		}
	default:
		panic(fmt.Sprintf("unsupported journal store DSN scheme: %q", dsn.Scheme))
	}
}

// keyValueStoreFromDSN returns the key/value store described by the given
// DSN.
//
// Supported schemes are "memory:" and "dynamodb://<table>".
func keyValueStoreFromDSN(dsn *url.URL) kv.Store {
	switch dsn.Scheme {
	case "memory":
		return &memory.KeyValueStore{}
	case "dynamodb":
		return &dynamodb.KeyValueStore{
			Client: dynamoDBClientFromDSN(dsn),
			Table:  dsn.Host,
		}
	default:
		panic(fmt.Sprintf("unsupported key/value store DSN scheme: %q", dsn.Scheme))
	}
}

func dynamoDBClientFromDSN(dsn *url.URL) *awsdynamodb.Client {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		panic(fmt.Sprintf("unable to load AWS configuration for %q: %s", dsn, err))
	}

	return awsdynamodb.NewFromConfig(cfg)
}
