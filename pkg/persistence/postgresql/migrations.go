package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				version TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				is_published BOOLEAN NOT NULL DEFAULT FALSE,
				graph JSONB NOT NULL,
				trigger_config JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_definitions_tenant
				ON workflow_definitions (tenant_id);
			CREATE INDEX IF NOT EXISTS idx_definitions_tenant_name
				ON workflow_definitions (tenant_id, name);

			CREATE TABLE IF NOT EXISTS workflow_executions (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				definition_id TEXT NOT NULL,
				execution_key TEXT NOT NULL UNIQUE,
				status TEXT NOT NULL,
				trigger_type TEXT NOT NULL DEFAULT '',
				trigger_data JSONB,
				variables JSONB,
				current_step TEXT NOT NULL DEFAULT '',
				progress_percentage INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				lock_version BIGINT NOT NULL DEFAULT 1
			);

			CREATE INDEX IF NOT EXISTS idx_executions_tenant_status
				ON workflow_executions (tenant_id, status);
			CREATE INDEX IF NOT EXISTS idx_executions_tenant_definition
				ON workflow_executions (tenant_id, definition_id);

			CREATE TABLE IF NOT EXISTS workflow_step_executions (
				id TEXT PRIMARY KEY,
				execution_id TEXT NOT NULL REFERENCES workflow_executions (id) ON DELETE CASCADE,
				step_id TEXT NOT NULL,
				step_name TEXT NOT NULL DEFAULT '',
				step_type TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				input_data JSONB,
				output_data JSONB,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT ''
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_step_executions_execution_step
				ON workflow_step_executions (execution_id, step_id);

			CREATE TABLE IF NOT EXISTS business_rules (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				rule_type TEXT NOT NULL DEFAULT '',
				priority INTEGER NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				conditions JSONB,
				actions JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_rules_tenant_entity
				ON business_rules (tenant_id, entity_type, is_active);

			CREATE TABLE IF NOT EXISTS rule_executions (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				rule_id TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				trigger_event TEXT NOT NULL DEFAULT '',
				input_data JSONB,
				status TEXT NOT NULL,
				output_data JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_rule_executions_tenant_rule
				ON rule_executions (tenant_id, rule_id);
			CREATE INDEX IF NOT EXISTS idx_rule_executions_tenant_entity
				ON rule_executions (tenant_id, entity_type, entity_id);
		`,
	}
}
