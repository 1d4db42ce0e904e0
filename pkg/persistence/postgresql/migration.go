package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow instances: the full instance as a JSONB document plus
			-- the columns queries filter on.
			CREATE TABLE workflow_instances (
				id VARCHAR(64) PRIMARY KEY,
				template_id VARCHAR(255) NOT NULL,
				template_version INT NOT NULL,
				request_type VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL,
				priority VARCHAR(32) NOT NULL,
				requester_id VARCHAR(255) NOT NULL,
				current_step INT NOT NULL DEFAULT 0,
				current_due_date TIMESTAMP WITH TIME ZONE,
				document JSONB NOT NULL,
				version BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_request_type ON workflow_instances(request_type);
			CREATE INDEX idx_workflow_instances_requester_id ON workflow_instances(requester_id);
			CREATE INDEX idx_workflow_instances_created_at ON workflow_instances(created_at);

			CREATE TABLE audit_entries (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(64) NOT NULL UNIQUE,
				instance_id VARCHAR(64) NOT NULL,
				step_number INT,
				actor_id VARCHAR(255) NOT NULL,
				action VARCHAR(32) NOT NULL,
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_audit_entries_instance_id ON audit_entries(instance_id, seq);
		`,
		2: `
			-- Everyone who may decide the pending step: the approver and, for
			-- groups, its members.
			ALTER TABLE workflow_instances ADD COLUMN current_approvers TEXT[] NOT NULL DEFAULT '{}';

			CREATE INDEX idx_workflow_instances_current_approvers ON workflow_instances USING GIN (current_approvers);
		`,
	}
}
