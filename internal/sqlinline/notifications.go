package sqlinline

const QInsertNotification = `--sql 0a9b8c7d-6e5f-4a3b-9c2d-1e0f9a8b7c6d
insert into notifications (id, user_id, type, title, message, data, read, created_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, coalesce($6::jsonb, '{}'::jsonb), false, now())
returning created_at;
`

const QListNotifications = `--sql 9d1e2f3a-4b5c-4d6e-8f7a-0b1c2d3e4f5a
select id, user_id, type, title, message, data, read, created_at
from notifications
where user_id = $1::text
  and (not $2::boolean or read = false)
order by id desc
limit $3::int;
`

const QMarkNotificationRead = `--sql c3b2a190-8f7e-4d6c-b5a4-93827160f5e4
update notifications
set read = true
where id = $1::text and user_id = $2::text;
`

const QMarkAllNotificationsRead = `--sql 5e4d3c2b-1a09-4f8e-9d7c-6b5a4f3e2d1c
update notifications
set read = true
where user_id = $1::text and read = false;
`
