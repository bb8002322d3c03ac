package sqlinline

// QCreateSchema is applied by `genctl migrate`; every statement is idempotent.
const QCreateSchema = `--sql 1b2c3d4e-5f60-4718-a9b0-c1d2e3f4a5b6
create extension if not exists pgcrypto;

create table if not exists generations (
    id uuid primary key,
    user_id text not null,
    kind text not null,
    prompt text not null default '',
    model text not null default '',
    params jsonb not null default '{}'::jsonb,
    status text not null default 'PENDING',
    result_url text,
    provider text,
    error text,
    attempts jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    completed_at timestamptz
);
create index if not exists generations_user_idx on generations (user_id, created_at desc);

create table if not exists notifications (
    id text primary key,
    user_id text not null,
    type text not null,
    title text not null,
    message text not null,
    data jsonb not null default '{}'::jsonb,
    read boolean not null default false,
    created_at timestamptz not null default now()
);
create index if not exists notifications_user_idx on notifications (user_id, id desc);

create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
