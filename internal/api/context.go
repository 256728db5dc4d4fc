package api

import "context"

type contextKey string

const authorIDKey contextKey = "authorID"

// AuthorIDFromContext returns the author identified by the request headers,
// or "" if the request was not authenticated.
func AuthorIDFromContext(ctx context.Context) string {
	if v := ctx.Value(authorIDKey); v != nil {
		if authorID, ok := v.(string); ok {
			return authorID
		}
	}

	return ""
}

func withAuthorID(ctx context.Context, authorID string) context.Context {
	return context.WithValue(ctx, authorIDKey, authorID)
}
