// Package pagination implements cursor-based paging for MCP list
// operations.
//
// Servers hold a Manager and page any stable ordering through an
// Enumerator:
//
//	res, err := pagination.Page(ctx, m, protocol.MethodListTools, params.Cursor,
//		pagination.SliceEnumerator(tools))
//	if err != nil {
//		return nil, err // invalid cursors map to InvalidParams on the wire
//	}
//	return &protocol.ListToolsResult{
//		Tools:           res.Items,
//		PaginatedResult: protocol.PaginatedResult{NextCursor: res.NextCursor},
//	}, nil
//
// Cursors are signed tokens scoped to the operation that issued them. A
// cursor from tools/list presented to prompts/list, a cursor signed by
// another key, or a modified cursor is rejected.
//
// Clients follow cursors with Collect, which stops when the server omits
// nextCursor and fails if a cursor repeats.
package pagination
