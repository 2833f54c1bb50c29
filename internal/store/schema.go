package store

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB TABLE (durable queue entries)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS queue ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string DEFAULT 'queued';
    DEFINE FIELD IF NOT EXISTS attempts ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS claimed_at ON job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;
    DEFINE INDEX IF NOT EXISTS job_queue ON job FIELDS queue;

    -- ==========================================================================
    -- OUTCOME TABLE (terminal result per job id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS outcome SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS content ON outcome TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON outcome TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS provider_name ON outcome TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS model_used ON outcome TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS completed_at ON outcome TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- GRADING TABLE (submission grading lifecycle)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS grading SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON grading TYPE string DEFAULT 'pending';
    DEFINE FIELD IF NOT EXISTS max_score ON grading TYPE float;
    DEFINE FIELD IF NOT EXISTS score ON grading TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS comment ON grading TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS similarity ON grading TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS job_id ON grading TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS updated_at ON grading TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS grading_status ON grading FIELDS status;
    DEFINE INDEX IF NOT EXISTS grading_job ON grading FIELDS job_id;
`
