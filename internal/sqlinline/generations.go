package sqlinline

const QInsertGeneration = `--sql 3f6b2c1e-9a4d-4e7b-8c21-5d0f7a9e3b14
insert into generations (id, user_id, kind, prompt, model, params, status, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, coalesce($6::jsonb, '{}'::jsonb), 'PENDING', now(), now())
returning created_at, updated_at;
`

const QMarkGenerationProcessing = `--sql 7c2e91ab-4f3d-4b8e-a6d5-1e9c0b7f2a63
update generations
set status = 'PROCESSING',
    error = null,
    updated_at = now()
where id = $1::uuid;
`

const QMarkGenerationCompleted = `--sql b41d8e07-2c6a-4f95-9e3b-8a7c5d1f0e29
update generations
set status = 'COMPLETED',
    result_url = $2::text,
    provider = $3::text,
    attempts = $4::jsonb,
    error = null,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid;
`

const QMarkGenerationFailed = `--sql e8a3c5f1-6b2d-4d07-b9e4-0f1a2c3d4e5b
update generations
set status = 'FAILED',
    error = $2::text,
    attempts = $3::jsonb,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid;
`

const QSelectGeneration = `--sql 52d9f0c4-1e7a-4b3c-8d6f-a2b5c8e1f704
select id::text, user_id, kind, prompt, model, params, status,
       coalesce(result_url, ''), coalesce(provider, ''), coalesce(error, ''),
       coalesce(attempts, '[]'::jsonb), created_at, updated_at, completed_at
from generations
where id = $1::uuid;
`
