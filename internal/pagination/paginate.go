package pagination

import (
	"context"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/errors"
	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/model"
)

// Navigator walks the buckets of one owner key in creation order
type Navigator interface {
	First(ctx context.Context) (*model.Bucket, error)
	Next(ctx context.Context, after *model.Bucket) (*model.Bucket, error)
	Lookup(ctx context.Context, bucketID string) (*model.Bucket, error)
}

// FetchFunc reads at most limit items from one bucket, starting after cursor
// (or at the start of the bucket when cursor is empty). It returns a non-empty
// next cursor only when further rows remain in the bucket.
type FetchFunc[T any] func(ctx context.Context, b *model.Bucket, cursor string, limit int) (items []T, next string, err error)

// Result is one page of a listing. NextToken is empty at the end of the data.
type Result[T any] struct {
	Items     []T
	NextToken string
}

// Paginate returns at most limit items starting at token, crossing bucket
// boundaries as needed. An empty token starts at the first bucket.
func Paginate[T any](ctx context.Context, nav Navigator, token string, limit int, fetch FetchFunc[T]) (*Result[T], error) {
	if limit <= 0 {
		return nil, errors.InvalidArgument("limit must be positive")
	}

	var (
		b      *model.Bucket
		cursor string
		err    error
	)
	if token == "" {
		b, err = nav.First(ctx)
	} else {
		t, decodeErr := Decode(token)
		if decodeErr != nil {
			return nil, decodeErr
		}
		cursor = t.Cursor
		if t.BucketID == "" {
			b, err = nav.First(ctx)
		} else {
			b, err = nav.Lookup(ctx, t.BucketID)
		}
	}
	if err != nil {
		return nil, err
	}

	result := &Result[T]{Items: make([]T, 0)}
	for b != nil {
		items, next, err := fetch(ctx, b, cursor, limit-len(result.Items))
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, items...)

		if next != "" {
			result.NextToken = Encode(next, b.BucketID)
			return result, nil
		}

		following, err := nav.Next(ctx, b)
		if err != nil {
			return nil, err
		}
		if len(result.Items) >= limit {
			if following != nil {
				result.NextToken = Encode("", following.BucketID)
			}
			return result, nil
		}
		b = following
		cursor = ""
	}
	return result, nil
}
