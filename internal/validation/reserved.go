package validation

import "strings"

// n1qlReserved lists the N1QL keywords that cannot be used as bare
// identifiers and have to be escaped with backticks.
var n1qlReserved = []string{
	"_INDEX_CONDITION", "_INDEX_KEY", "ADVISE", "ALL", "ALTER", "ANALYZE", "AND", "ANY",
	"ARRAY", "AS", "ASC", "AT", "BEGIN", "BETWEEN", "BINARY", "BOOLEAN", "BREAK", "BUCKET",
	"BUILD", "BY", "CACHE", "CALL", "CASE", "CAST", "CLUSTER", "COLLATE", "COLLECTION",
	"COMMIT", "COMMITTED", "CONNECT", "CONTINUE", "CORRELATED", "COVER", "CREATE",
	"CURRENT", "CYCLE", "DATABASE", "DATASET", "DATASTORE", "DECLARE", "DECREMENT",
	"DEFAULT", "DELETE", "DERIVED", "DESC", "DESCRIBE", "DISTINCT", "DO", "DROP", "EACH",
	"ELEMENT", "ELSE", "END", "ESCAPE", "EVERY", "EXCEPT", "EXCLUDE", "EXECUTE", "EXISTS",
	"EXPLAIN", "FALSE", "FETCH", "FILTER", "FIRST", "FLATTEN", "FLATTEN_KEYS", "FLUSH",
	"FOLLOWING", "FOR", "FORCE", "FROM", "FTS", "FUNCTION", "GOLANG", "GRANT", "GROUP",
	"GROUPS", "GSI", "HASH", "HAVING", "IF", "IGNORE", "ILIKE", "IN", "INCLUDE",
	"INCREMENT", "INDEX", "INFER", "INLINE", "INNER", "INSERT", "INTERSECT", "INTO", "IS",
	"ISOLATION", "JAVASCRIPT", "JOIN", "KEY", "KEYS", "KEYSPACE", "KNOWN", "LANGUAGE",
	"LAST", "LATERAL", "LEFT", "LET", "LETTING", "LEVEL", "LIKE", "LIMIT", "LSM", "MAP",
	"MAPPING", "MATCHED", "MATERIALIZED", "MAXVALUE", "MERGE", "MINVALUE", "MISSING",
	"NAMESPACE", "NEST", "NEXT", "NEXTVAL", "NL", "NO", "NOT", "NTH_VALUE", "NULL", "NULLS",
	"NUMBER", "OBJECT", "OFFSET", "ON", "OPTION", "OPTIONS", "OR", "ORDER", "OTHERS",
	"OUTER", "OVER", "PARSE", "PARTITION", "PASSWORD", "PATH", "POOL", "PRECEDING",
	"PREPARE", "PREV", "PREVIOUS", "PREVVAL", "PRIMARY", "PRIVATE", "PRIVILEGE", "PROBE",
	"PROCEDURE", "PUBLIC", "RANGE", "RAW", "READ", "REALM", "RECURSIVE", "REDUCE", "RENAME",
	"REPLACE", "RESPECT", "RESTART", "RESTRICT", "RETURN", "RETURNING", "REVOKE", "RIGHT",
	"ROLE", "ROLLBACK", "ROW", "ROWS", "SATISFIES", "SAVEPOINT", "SCHEMA", "SCOPE",
	"SELECT", "SELF", "SEQUENCE", "SET", "SHOW", "SOME", "START", "STATISTICS", "STRING",
	"SYSTEM", "THEN", "TIES", "TO", "TRAN", "TRANSACTION", "TRIGGER", "TRUE", "TRUNCATE",
	"UNBOUNDED", "UNDER", "UNION", "UNIQUE", "UNKNOWN", "UNNEST", "UNSET", "UPDATE",
	"UPSERT", "USE", "USER", "USERS", "USING", "VALIDATE", "VALUE", "VALUED", "VALUES",
	"VECTOR", "VIA", "VIEW", "WHEN", "WHERE", "WHILE", "WINDOW", "WITH", "WITHIN", "WORK",
	"XOR",
}

var reservedWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(n1qlReserved))
	for _, w := range n1qlReserved {
		m[w] = struct{}{}
	}
	return m
}()

// IsReservedWord reports whether id is a N1QL reserved word (case-insensitive).
func IsReservedWord(id string) bool {
	_, ok := reservedWords[strings.ToUpper(id)]
	return ok
}
