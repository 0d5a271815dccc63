// Package all registers every built-in storage backend (mysql, postgres,
// mssql, sqlite) with the storage package. Import it for its side effects:
//
//	import _ "epiviz/internal/storage/all"
package all

import (
	_ "epiviz/internal/storage/mssql"
	_ "epiviz/internal/storage/mysql"
	_ "epiviz/internal/storage/postgres"
	_ "epiviz/internal/storage/sqlite"
)
