package sqlinline

const QInsertUsageEvent = `--sql 3f9c2d71-84ab-4e02-9d3f-6b21c47a90e5
insert into usage_events(id, user_id, request_id, event_type, success, tokens, cost, country, created_at)
values (gen_random_uuid(), $1::text, $2::text, $3::text, $4::boolean, $5::int, $6::int, nullif($7::text, ''), now());
`
