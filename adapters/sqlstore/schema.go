package sqlstore

// StateSchema returns the DDL for the operation state table.
func StateSchema(tableName string) string {
	return `
create table ` + tableName + ` (
  operation_id varchar(255) not null,
  current_step varchar(255) not null,
  status int not null,
  context blob not null,
  version bigint not null,
  created_at datetime(3) not null,
  updated_at datetime(3) not null,

  primary key (operation_id),
  index by_status_updated_at (status, updated_at)
);`
}

// AuditSchema returns the DDL for the append-only audit table.
func AuditSchema(tableName string) string {
	return `
create table ` + tableName + ` (
  id bigint not null auto_increment,
  operation_id varchar(255) not null,
  timestamp datetime(3) not null,
  step varchar(255) not null,
  status varchar(255) not null,
  details blob not null,

  primary key (id),
  index by_operation_timestamp (operation_id, timestamp)
);`
}
