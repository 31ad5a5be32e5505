package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const transitionsCollection = "transitions"

type MongoRecorder struct {
	Db *mongo.Database
}

type NewMongoRecorderOpts struct {
	Client *mongo.Client
}

func NewMongoRecorder(opts NewMongoRecorderOpts) (*MongoRecorder, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("failed to receive a mongo client")
	}
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := opts.Client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo server: %w", err)
	}
	return &MongoRecorder{Db: opts.Client.Database("audit")}, nil
}

func (r *MongoRecorder) Record(entry LogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := r.Db.Collection(transitionsCollection).InsertOne(ctx, entry)
	if err != nil {
		logrus.Warnf("failed to insert audit entry for request[%s]: %s", entry.RequestId, err)
		return fmt.Errorf("audit log insert failed: %w", err)
	}
	logrus.Debugf("inserted audit entry[%v]", res.InsertedID)
	return nil
}

// GetByRequest returns historical transitions for a request, newest
// first up to the provided cursor; used by operator tooling, never by
// the engine itself
func (r *MongoRecorder) GetByRequest(requestId string, cursor time.Time, limit int64) (LogEntries, error) {
	findTimeout := 3 * time.Second
	findCtx, cancelFind := context.WithTimeout(context.Background(), findTimeout)
	defer cancelFind()
	res, err := r.Db.Collection(transitionsCollection).
		Find(findCtx, bson.M{"requestId": requestId, "timestamp": bson.M{"$lte": cursor}}, options.Find().SetLimit(limit))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout[%v] on find", findTimeout)
		}
		return nil, fmt.Errorf("find failed: %w", err)
	}
	defer res.Close(findCtx)

	var results LogEntries
	decodeTimeout := 3 * time.Second
	decodeCtx, cancelDecode := context.WithTimeout(context.Background(), decodeTimeout)
	defer cancelDecode()
	if err := res.All(decodeCtx, &results); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout[%v] on decode", decodeTimeout)
		}
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	return results, nil
}

var _ Recorder = (*MongoRecorder)(nil)
